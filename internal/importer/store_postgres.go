package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool      db.Pool
	batchSize int
}

// NewPostgresStore creates a PostgresStore. Records are copied in batches
// of at most batchSize rows.
func NewPostgresStore(pool db.Pool, batchSize int) *PostgresStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PostgresStore{pool: pool, batchSize: batchSize}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_runs (
	id             UUID PRIMARY KEY,
	source         TEXT NOT NULL,
	city_id        BIGINT,
	niche_id       BIGINT,
	query          TEXT,
	limit_n        INTEGER NOT NULL DEFAULT 0,
	dry_run        BOOLEAN NOT NULL DEFAULT FALSE,
	actor_id       TEXT NOT NULL DEFAULT '',
	params         JSONB NOT NULL DEFAULT '{}',
	options        JSONB NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL DEFAULT 'pending',
	found          INTEGER NOT NULL DEFAULT 0,
	inserted       INTEGER NOT NULL DEFAULT 0,
	updated        INTEGER NOT NULL DEFAULT 0,
	conflicts      INTEGER NOT NULL DEFAULT 0,
	errors         INTEGER NOT NULL DEFAULT 0,
	deduped        INTEGER NOT NULL DEFAULT 0,
	error          TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at    TIMESTAMPTZ,
	invalidated_by TEXT,
	invalidated_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_import_runs_status ON import_runs(status);
CREATE INDEX IF NOT EXISTS idx_import_runs_created ON import_runs(created_at DESC);

CREATE TABLE IF NOT EXISTS import_records (
	id          UUID PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES import_runs(id),
	position    INTEGER NOT NULL DEFAULT 0,
	city_id     BIGINT,
	niche_id    BIGINT,
	dedupe_key  TEXT,
	company_id  BIGINT,
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	raw         JSONB NOT NULL DEFAULT '{}',
	projection  JSONB NOT NULL DEFAULT '{}',
	publish     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_records_run ON import_records(run_id, position);
CREATE INDEX IF NOT EXISTS idx_import_records_status ON import_records(run_id, status);
`

// Migrate creates the import tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "importer: postgres migrate")
}

// CreateRun inserts a new run.
func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	enc, err := encodeRun(run)
	if err != nil {
		return err
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO import_runs (
			id, source, city_id, niche_id, query, limit_n, dry_run, actor_id,
			params, options, status
		) VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		string(run.Source), run.CityID, run.NicheID, run.Query, run.Limit, run.DryRun, run.ActorID,
		enc.params, enc.options, string(run.Status),
	).Scan(&run.ID, &run.CreatedAt)
	return eris.Wrap(err, "importer: create run")
}

// TransitionRun moves a run between statuses.
func (s *PostgresStore) TransitionRun(ctx context.Context, runID string, from, to RunStatus) error {
	if !from.CanTransition(to) {
		return eris.Wrapf(ErrInvalidTransition, "importer: %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_runs SET status = $1 WHERE id = $2 AND status = $3`, string(to), runID, string(from))
	if err != nil {
		return eris.Wrapf(err, "importer: transition run %s", runID)
	}
	return s.checkRunUpdate(ctx, tag, runID, from, to)
}

// FinishRun closes a running run with its final counters. A pending run
// may only be closed as failed.
func (s *PostgresStore) FinishRun(ctx context.Context, runID string, to RunStatus, c Counters, errMsg string) error {
	if !RunRunning.CanTransition(to) {
		return eris.Wrapf(ErrInvalidTransition, "importer: finish run %s as %s", runID, to)
	}
	from, alt := finishFrom(to)
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_runs SET
			status = $1, found = $2, inserted = $3, updated = $4, conflicts = $5, errors = $6, deduped = $7,
			error = $8, finished_at = now()
		WHERE id = $9 AND status IN ($10, $11)`,
		string(to), c.Found, c.Inserted, c.Updated, c.Conflicts, c.Errors, c.Deduped,
		nullString(errMsg), runID, string(from), string(alt),
	)
	if err != nil {
		return eris.Wrapf(err, "importer: finish run %s", runID)
	}
	return s.checkRunUpdate(ctx, tag, runID, RunRunning, to)
}

// AddRunCounters adds delta to the stored counters in one statement.
func (s *PostgresStore) AddRunCounters(ctx context.Context, runID string, d Counters) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_runs SET
			found = found + $1, inserted = inserted + $2, updated = updated + $3,
			conflicts = conflicts + $4, errors = errors + $5, deduped = deduped + $6
		WHERE id = $7`,
		d.Found, d.Inserted, d.Updated, d.Conflicts, d.Errors, d.Deduped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "importer: add counters to run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "importer: add counters %s", runID)
	}
	return nil
}

// InvalidateRun marks a done run as invalidated by actor.
func (s *PostgresStore) InvalidateRun(ctx context.Context, runID, actor string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_runs SET status = $1, invalidated_by = $2, invalidated_at = now()
		WHERE id = $3 AND status = $4`,
		string(RunInvalidated), nullString(actor), runID, string(RunDone),
	)
	if err != nil {
		return eris.Wrapf(err, "importer: invalidate run %s", runID)
	}
	return s.checkRunUpdate(ctx, tag, runID, RunDone, RunInvalidated)
}

func (s *PostgresStore) checkRunUpdate(ctx context.Context, tag pgconn.CommandTag, runID string, from, to RunStatus) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return eris.Wrapf(ErrRunNotFound, "importer: run %s", runID)
	}
	return eris.Wrapf(ErrInvalidTransition, "importer: run %s is %s, want %s -> %s", runID, run.Status, from, to)
}

// GetRun retrieves a run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = $1`, runID)
	run, err := scanPostgresRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "importer: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var where []string
	var args []any
	argN := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, string(filter.Status))
		argN++
	}
	if filter.Source != "" {
		where = append(where, fmt.Sprintf("source = $%d", argN))
		args = append(args, string(filter.Source))
		argN++
	}

	query := `SELECT ` + runColumns + ` FROM import_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "importer: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "importer: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "importer: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*Run, error) {
	var (
		run             Run
		params, options []byte
		errMsg, invBy   *string
	)
	err := row.Scan(
		&run.ID, &run.Source, &run.CityID, &run.NicheID, &run.Query, &run.Limit, &run.DryRun, &run.ActorID,
		&params, &options, &run.Status,
		&run.Counters.Found, &run.Counters.Inserted, &run.Counters.Updated,
		&run.Counters.Conflicts, &run.Counters.Errors, &run.Counters.Deduped,
		&errMsg, &run.CreatedAt, &run.FinishedAt, &invBy, &run.InvalidatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Error = derefString(errMsg)
	run.InvalidatedBy = derefString(invBy)
	if err := decodeRunJSON(&run, params, options); err != nil {
		return nil, err
	}
	return &run, nil
}

var recordCopyColumns = []string{
	"id", "run_id", "position", "city_id", "niche_id", "dedupe_key", "company_id",
	"status", "reason", "raw", "projection", "publish", "created_at", "updated_at",
}

// InsertRecords copies records in batches of at most batchSize rows.
func (s *PostgresStore) InsertRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for i := range records {
		rec := &records[i]
		prepareRecord(rec, now)
		proj, err := encodeProjection(rec.Projection)
		if err != nil {
			return err
		}
		pub, err := encodePublish(rec.Publish)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			rec.ID, rec.RunID, rec.Position, rec.CityID, rec.NicheID, rec.DedupeKey, rec.CompanyID,
			string(rec.Status), rec.Reason, rawBytes(rec.Raw), proj, pub, rec.CreatedAt, rec.UpdatedAt,
		})
	}
	bc := db.BulkCopy{Table: "import_records", Columns: recordCopyColumns, BatchSize: s.batchSize}
	_, err := bc.Copy(ctx, s.pool, rows)
	return eris.Wrap(err, "importer: insert records")
}

// GetRecord retrieves a record by ID.
func (s *PostgresStore) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM import_records WHERE id = $1`, recordID)
	rec, err := scanPostgresRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "importer: get record %s", recordID)
	}
	return rec, nil
}

func postgresRecordWhere(filter RecordFilter) (string, []any) {
	where := "run_id = $1"
	args := []any{filter.RunID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	return where, args
}

// ListRecords returns a page of a run's records in position order.
func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	where, args := postgresRecordWhere(filter)
	n := len(args)
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+recordColumns+` FROM import_records WHERE %s ORDER BY position, id LIMIT $%d OFFSET $%d`,
		where, n+1, n+2), args...)
	if err != nil {
		return nil, eris.Wrap(err, "importer: list records")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "importer: scan record")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "importer: list records iterate")
}

// CountRecords counts the records matching the filter, ignoring paging.
func (s *PostgresStore) CountRecords(ctx context.Context, filter RecordFilter) (int, error) {
	where, args := postgresRecordWhere(filter)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_records WHERE `+where, args...).Scan(&n)
	return n, eris.Wrap(err, "importer: count records")
}

// PendingRecordIDs lists unpublished conflict records of a run.
func (s *PostgresStore) PendingRecordIDs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM import_records
		WHERE run_id = $1 AND status = $2 AND company_id IS NULL
		ORDER BY position, id`, runID, string(RecordConflict))
	if err != nil {
		return nil, eris.Wrap(err, "importer: pending records")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "importer: scan record id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "importer: pending records iterate")
}

// ResolveRecord applies upd to a record still in conflict.
func (s *PostgresStore) ResolveRecord(ctx context.Context, recordID string, upd RecordUpdate) error {
	pub, err := encodePublish(upd.Publish)
	if err != nil {
		return err
	}
	var proj []byte
	if upd.Projection != nil {
		if proj, err = encodeProjection(*upd.Projection); err != nil {
			return err
		}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_records SET
			status = $1,
			company_id = COALESCE($2, company_id),
			reason = $3,
			publish = COALESCE($4, publish),
			projection = COALESCE($5, projection),
			updated_at = now()
		WHERE id = $6 AND status = $7`,
		string(upd.Status), upd.CompanyID, upd.Reason, pub, proj, recordID, string(RecordConflict),
	)
	if err != nil {
		return eris.Wrapf(err, "importer: resolve record %s", recordID)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	rec, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return eris.Wrapf(ErrRecordNotFound, "importer: record %s", recordID)
	}
	return eris.Wrapf(ErrRecordNotInConflict, "importer: record %s is %s", recordID, rec.Status)
}

func scanPostgresRecord(row pgx.Row) (*Record, error) {
	var (
		rec                      Record
		raw, projection, publish []byte
	)
	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.Position, &rec.CityID, &rec.NicheID, &rec.DedupeKey, &rec.CompanyID,
		&rec.Status, &rec.Reason, &raw, &projection, &publish, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeRecordJSON(&rec, raw, projection, publish); err != nil {
		return nil, err
	}
	return &rec, nil
}
