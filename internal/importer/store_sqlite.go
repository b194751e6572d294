package importer

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db        *sql.DB
	batchSize int
}

// NewSQLiteStore wraps an open SQLite handle. Records are written in
// transactions of at most batchSize rows.
func NewSQLiteStore(sqlDB *sql.DB, batchSize int) *SQLiteStore {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLiteStore{db: sqlDB, batchSize: batchSize}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS import_runs (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	city_id        INTEGER,
	niche_id       INTEGER,
	query          TEXT,
	limit_n        INTEGER NOT NULL DEFAULT 0,
	dry_run        INTEGER NOT NULL DEFAULT 0,
	actor_id       TEXT NOT NULL DEFAULT '',
	params         TEXT NOT NULL DEFAULT '{}',
	options        TEXT NOT NULL DEFAULT '{}',
	status         TEXT NOT NULL DEFAULT 'pending',
	found          INTEGER NOT NULL DEFAULT 0,
	inserted       INTEGER NOT NULL DEFAULT 0,
	updated        INTEGER NOT NULL DEFAULT 0,
	conflicts      INTEGER NOT NULL DEFAULT 0,
	errors         INTEGER NOT NULL DEFAULT 0,
	deduped        INTEGER NOT NULL DEFAULT 0,
	error          TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at    DATETIME,
	invalidated_by TEXT,
	invalidated_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_import_runs_status ON import_runs(status);
CREATE INDEX IF NOT EXISTS idx_import_runs_created ON import_runs(created_at);

CREATE TABLE IF NOT EXISTS import_records (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES import_runs(id),
	position    INTEGER NOT NULL DEFAULT 0,
	city_id     INTEGER,
	niche_id    INTEGER,
	dedupe_key  TEXT,
	company_id  INTEGER,
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	raw         TEXT NOT NULL DEFAULT '{}',
	projection  TEXT NOT NULL DEFAULT '{}',
	publish     TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_import_records_run ON import_records(run_id, position);
CREATE INDEX IF NOT EXISTS idx_import_records_status ON import_records(run_id, status);
`

// Migrate creates the import tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "importer: sqlite migrate")
}

// CreateRun inserts a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	enc, err := encodeRun(run)
	if err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunPending
	}
	run.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_runs (
			id, source, city_id, niche_id, query, limit_n, dry_run, actor_id,
			params, options, status, found, inserted, updated, conflicts, errors, deduped,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Source), run.CityID, run.NicheID, run.Query, run.Limit, run.DryRun, run.ActorID,
		string(enc.params), string(enc.options), string(run.Status),
		run.Counters.Found, run.Counters.Inserted, run.Counters.Updated,
		run.Counters.Conflicts, run.Counters.Errors, run.Counters.Deduped,
		run.CreatedAt,
	)
	return eris.Wrap(err, "importer: create run")
}

// TransitionRun moves a run between statuses.
func (s *SQLiteStore) TransitionRun(ctx context.Context, runID string, from, to RunStatus) error {
	if !from.CanTransition(to) {
		return eris.Wrapf(ErrInvalidTransition, "importer: %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET status = ? WHERE id = ? AND status = ?`, string(to), runID, string(from))
	if err != nil {
		return eris.Wrapf(err, "importer: transition run %s", runID)
	}
	return s.checkRunUpdate(ctx, res, runID, from, to)
}

// FinishRun closes a running run with its final counters. A pending run
// may only be closed as failed.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, to RunStatus, c Counters, errMsg string) error {
	if !RunRunning.CanTransition(to) {
		return eris.Wrapf(ErrInvalidTransition, "importer: finish run %s as %s", runID, to)
	}
	from, alt := finishFrom(to)
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			status = ?, found = ?, inserted = ?, updated = ?, conflicts = ?, errors = ?, deduped = ?,
			error = ?, finished_at = ?
		WHERE id = ? AND (status = ? OR status = ?)`,
		string(to), c.Found, c.Inserted, c.Updated, c.Conflicts, c.Errors, c.Deduped,
		nullString(errMsg), time.Now().UTC(),
		runID, string(from), string(alt),
	)
	if err != nil {
		return eris.Wrapf(err, "importer: finish run %s", runID)
	}
	return s.checkRunUpdate(ctx, res, runID, RunRunning, to)
}

// AddRunCounters adds delta to the stored counters in one statement.
func (s *SQLiteStore) AddRunCounters(ctx context.Context, runID string, d Counters) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			found = found + ?, inserted = inserted + ?, updated = updated + ?,
			conflicts = conflicts + ?, errors = errors + ?, deduped = deduped + ?
		WHERE id = ?`,
		d.Found, d.Inserted, d.Updated, d.Conflicts, d.Errors, d.Deduped, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "importer: add counters to run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "importer: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "importer: add counters %s", runID)
	}
	return nil
}

// InvalidateRun marks a done run as invalidated by actor.
func (s *SQLiteStore) InvalidateRun(ctx context.Context, runID, actor string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET status = ?, invalidated_by = ?, invalidated_at = ?
		WHERE id = ? AND status = ?`,
		string(RunInvalidated), nullString(actor), time.Now().UTC(), runID, string(RunDone),
	)
	if err != nil {
		return eris.Wrapf(err, "importer: invalidate run %s", runID)
	}
	return s.checkRunUpdate(ctx, res, runID, RunDone, RunInvalidated)
}

// checkRunUpdate tells a missing run apart from one in the wrong status.
func (s *SQLiteStore) checkRunUpdate(ctx context.Context, res sql.Result, runID string, from, to RunStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "importer: rows affected")
	}
	if n > 0 {
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

const runColumns = `id, source, city_id, niche_id, query, limit_n, dry_run, actor_id,
	params, options, status, found, inserted, updated, conflicts, errors, deduped,
	error, created_at, finished_at, invalidated_by, invalidated_at`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = ?`, runID)
	run, err := scanSQLiteRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "importer: get run %s", runID)
	}
	return run, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(filter.Source))
	}

	query := `SELECT ` + runColumns + ` FROM import_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "importer: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "importer: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "importer: list runs iterate")
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row sqlScanner) (*Run, error) {
	var (
		run             Run
		params, options string
		errMsg, invBy   sql.NullString
		finished, invAt sql.NullTime
	)
	err := row.Scan(
		&run.ID, &run.Source, &run.CityID, &run.NicheID, &run.Query, &run.Limit, &run.DryRun, &run.ActorID,
		&params, &options, &run.Status,
		&run.Counters.Found, &run.Counters.Inserted, &run.Counters.Updated,
		&run.Counters.Conflicts, &run.Counters.Errors, &run.Counters.Deduped,
		&errMsg, &run.CreatedAt, &finished, &invBy, &invAt,
	)
	if err != nil {
		return nil, err
	}
	run.Error = errMsg.String
	run.InvalidatedBy = invBy.String
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	if invAt.Valid {
		run.InvalidatedAt = &invAt.Time
	}
	if err := decodeRunJSON(&run, []byte(params), []byte(options)); err != nil {
		return nil, err
	}
	return &run, nil
}

// InsertRecords writes records in transactions of at most batchSize rows.
func (s *SQLiteStore) InsertRecords(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		if err := s.insertBatch(ctx, records[start:end]); err != nil {
			return eris.Wrapf(err, "importer: insert records %d-%d", start, end)
		}
	}
	return nil
}

func (s *SQLiteStore) insertBatch(ctx context.Context, batch []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "importer: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO import_records (
			id, run_id, position, city_id, niche_id, dedupe_key, company_id,
			status, reason, raw, projection, publish, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "importer: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range batch {
		rec := &batch[i]
		prepareRecord(rec, now)
		proj, err := encodeProjection(rec.Projection)
		if err != nil {
			return err
		}
		pub, err := encodePublish(rec.Publish)
		if err != nil {
			return err
		}
		var pubText *string
		if pub != nil {
			pubText = new(string)
			*pubText = string(pub)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.RunID, rec.Position, rec.CityID, rec.NicheID, rec.DedupeKey, rec.CompanyID,
			string(rec.Status), rec.Reason, string(rawBytes(rec.Raw)), string(proj), pubText,
			rec.CreatedAt, rec.UpdatedAt,
		); err != nil {
			return eris.Wrapf(err, "importer: insert record at position %d", rec.Position)
		}
	}
	return eris.Wrap(tx.Commit(), "importer: commit records")
}

// prepareRecord assigns the ID and timestamps of a new record.
func prepareRecord(rec *Record, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
}

const recordColumns = `id, run_id, position, city_id, niche_id, dedupe_key, company_id,
	status, reason, raw, projection, publish, created_at, updated_at`

// GetRecord retrieves a record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM import_records WHERE id = ?`, recordID)
	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "importer: get record %s", recordID)
	}
	return rec, nil
}

func recordWhere(filter RecordFilter) (string, []any) {
	where := "run_id = ?"
	args := []any{filter.RunID}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	return where, args
}

// ListRecords returns a page of a run's records in position order.
func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	where, args := recordWhere(filter)
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM import_records WHERE `+where+` ORDER BY position, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "importer: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "importer: scan record")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "importer: list records iterate")
}

// CountRecords counts the records matching the filter, ignoring paging.
func (s *SQLiteStore) CountRecords(ctx context.Context, filter RecordFilter) (int, error) {
	where, args := recordWhere(filter)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_records WHERE `+where, args...).Scan(&n)
	return n, eris.Wrap(err, "importer: count records")
}

// PendingRecordIDs lists unpublished conflict records of a run.
func (s *SQLiteStore) PendingRecordIDs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM import_records
		WHERE run_id = ? AND status = ? AND company_id IS NULL
		ORDER BY position, id`, runID, string(RecordConflict))
	if err != nil {
		return nil, eris.Wrap(err, "importer: pending records")
	}
	defer rows.Close() //nolint:errcheck

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
func (s *SQLiteStore) ResolveRecord(ctx context.Context, recordID string, upd RecordUpdate) error {
	pub, err := encodePublish(upd.Publish)
	if err != nil {
		return err
	}
	var pubText *string
	if pub != nil {
		pubText = new(string)
		*pubText = string(pub)
	}
	set := "status = ?, company_id = COALESCE(?, company_id), reason = ?, publish = COALESCE(?, publish), updated_at = ?"
	args := []any{string(upd.Status), upd.CompanyID, upd.Reason, pubText, time.Now().UTC()}
	if upd.Projection != nil {
		proj, err := encodeProjection(*upd.Projection)
		if err != nil {
			return err
		}
		set += ", projection = ?"
		args = append(args, string(proj))
	}
	args = append(args, recordID, string(RecordConflict))

	res, err := s.db.ExecContext(ctx, `UPDATE import_records SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "importer: resolve record %s", recordID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "importer: rows affected")
	}
	if n > 0 {
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

func scanSQLiteRecord(row sqlScanner) (*Record, error) {
	var (
		rec             Record
		raw, projection string
		publish         sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.Position, &rec.CityID, &rec.NicheID, &rec.DedupeKey, &rec.CompanyID,
		&rec.Status, &rec.Reason, &raw, &projection, &publish, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	var pub []byte
	if publish.Valid {
		pub = []byte(publish.String)
	}
	if err := decodeRecordJSON(&rec, []byte(raw), []byte(projection), pub); err != nil {
		return nil, err
	}
	return &rec, nil
}
