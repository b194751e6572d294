package company

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// PostgresRegistry implements Registry using pgx.
type PostgresRegistry struct {
	pool db.Pool
}

// NewPostgresRegistry creates a new PostgresRegistry.
func NewPostgresRegistry(pool db.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cities (
	id       BIGSERIAL PRIMARY KEY,
	name     TEXT NOT NULL,
	state    TEXT NOT NULL,
	name_key TEXT NOT NULL,
	UNIQUE (name_key, state)
);

CREATE TABLE IF NOT EXISTS niches (
	id         BIGSERIAL PRIMARY KEY,
	label      TEXT NOT NULL,
	label_key  TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id                  BIGSERIAL PRIMARY KEY,
	trade_name          TEXT NOT NULL,
	normalized_name     TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	normalized_phone    TEXT NOT NULL DEFAULT '',
	whatsapp            TEXT NOT NULL DEFAULT '',
	normalized_whatsapp TEXT NOT NULL DEFAULT '',
	address             TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	normalized_website  TEXT NOT NULL DEFAULT '',
	normalized_address  TEXT NOT NULL DEFAULT '',
	city_id             BIGINT REFERENCES cities(id),
	status              TEXT NOT NULL DEFAULT 'pending',
	quality_score       INTEGER NOT NULL DEFAULT 0,
	source              TEXT NOT NULL,
	source_run_id       TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_normalized_phone ON companies(normalized_phone) WHERE normalized_phone <> '';
CREATE INDEX IF NOT EXISTS idx_companies_normalized_whatsapp ON companies(normalized_whatsapp) WHERE normalized_whatsapp <> '';
CREATE INDEX IF NOT EXISTS idx_companies_normalized_website ON companies(normalized_website) WHERE normalized_website <> '';
ALTER TABLE companies ADD COLUMN IF NOT EXISTS normalized_address TEXT NOT NULL DEFAULT '';

CREATE INDEX IF NOT EXISTS idx_companies_name_city ON companies(normalized_name, city_id);
CREATE INDEX IF NOT EXISTS idx_companies_name_address ON companies(normalized_name, normalized_address);
CREATE INDEX IF NOT EXISTS idx_companies_source_run ON companies(source_run_id);

CREATE TABLE IF NOT EXISTS company_niches (
	company_id BIGINT NOT NULL REFERENCES companies(id),
	niche_id   BIGINT NOT NULL REFERENCES niches(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, niche_id)
);
`

// Migrate creates the registry tables.
func (s *PostgresRegistry) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "company: migrate")
}

// FindByNormalizedPhone matches digits against phone and whatsapp.
func (s *PostgresRegistry) FindByNormalizedPhone(ctx context.Context, digits string, cityID *int64, limit int) ([]Company, error) {
	return s.findCompanies(ctx, "(c.normalized_phone = $1 OR c.normalized_whatsapp = $1)", []any{digits}, cityID, limit)
}

// FindByNormalizedWebsite matches the website key.
func (s *PostgresRegistry) FindByNormalizedWebsite(ctx context.Context, websiteKey string, cityID *int64, limit int) ([]Company, error) {
	return s.findCompanies(ctx, "c.normalized_website = $1", []any{websiteKey}, cityID, limit)
}

// FindByNormalizedNameAndCity matches the normalized trade name.
func (s *PostgresRegistry) FindByNormalizedNameAndCity(ctx context.Context, name string, cityID *int64, limit int) ([]Company, error) {
	return s.findCompanies(ctx, "c.normalized_name = $1", []any{name}, cityID, limit)
}

// FindByNormalizedNameAndAddress matches normalized name and address together.
func (s *PostgresRegistry) FindByNormalizedNameAndAddress(ctx context.Context, name, address string, cityID *int64, limit int) ([]Company, error) {
	if address == "" {
		return nil, nil
	}
	return s.findCompanies(ctx, "c.normalized_name = $1 AND c.normalized_address = $2", []any{name, address}, cityID, limit)
}

// findCompanies runs cond with its positional args. An empty first arg
// short-circuits to no rows.
func (s *PostgresRegistry) findCompanies(ctx context.Context, cond string, args []any, cityID *int64, limit int) ([]Company, error) {
	if args[0] == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = MaxMatches
	}

	query := `SELECT ` + companyColumns + ` FROM companies c WHERE ` + cond
	if cityID != nil {
		args = append(args, *cityID)
		query += fmt.Sprintf(` AND c.city_id = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY c.id LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "company: find companies")
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// GetCompany fetches a company by ID.
func (s *PostgresRegistry) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c := &Company{}
	err := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = $1`, id).
		Scan(companyDests(c)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "company: get %d", id)
	}
	return c, nil
}

// InsertCompany inserts a new company and sets its ID.
func (s *PostgresRegistry) InsertCompany(ctx context.Context, c *Company) error {
	c.Normalize()
	if c.Status == "" {
		c.Status = StatusPending
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (
			trade_name, normalized_name, phone, normalized_phone,
			whatsapp, normalized_whatsapp, address, website, normalized_website,
			normalized_address, city_id, status, quality_score, source, source_run_id
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15
		) RETURNING id, created_at, updated_at`,
		c.TradeName, c.NormalizedName, c.Phone, c.NormalizedPhone,
		c.WhatsApp, c.NormalizedWhatsApp, c.Address, c.Website, c.NormalizedWebsite,
		c.NormalizedAddress, c.CityID, string(c.Status), c.QualityScore, string(c.Source), c.SourceRunID,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "company: insert")
	}
	return nil
}

// UpdateCompany updates an existing company.
func (s *PostgresRegistry) UpdateCompany(ctx context.Context, c *Company) error {
	c.Normalize()
	c.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE companies SET
			trade_name=$2, normalized_name=$3, phone=$4, normalized_phone=$5,
			whatsapp=$6, normalized_whatsapp=$7, address=$8, website=$9, normalized_website=$10,
			normalized_address=$11, city_id=$12, status=$13, quality_score=$14, source=$15, source_run_id=$16,
			updated_at=$17
		WHERE id=$1`,
		c.ID,
		c.TradeName, c.NormalizedName, c.Phone, c.NormalizedPhone,
		c.WhatsApp, c.NormalizedWhatsApp, c.Address, c.Website, c.NormalizedWebsite,
		c.NormalizedAddress, c.CityID, string(c.Status), c.QualityScore, string(c.Source), c.SourceRunID,
		c.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "company: update %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "company: update %d", c.ID)
	}
	return nil
}

// LinkCompanyToNiche links a company to a niche; repeated links are no-ops.
func (s *PostgresRegistry) LinkCompanyToNiche(ctx context.Context, companyID, nicheID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_niches (company_id, niche_id) VALUES ($1, $2)
		ON CONFLICT (company_id, niche_id) DO NOTHING`,
		companyID, nicheID,
	)
	if err != nil {
		return eris.Wrapf(err, "company: link %d to niche %d", companyID, nicheID)
	}
	return nil
}

// ListCompaniesByRun returns companies last written by the given run.
func (s *PostgresRegistry) ListCompaniesByRun(ctx context.Context, runID string) ([]Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+companyColumns+` FROM companies c WHERE c.source_run_id = $1 ORDER BY c.id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "company: list by run")
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// GetCity fetches a city by ID.
func (s *PostgresRegistry) GetCity(ctx context.Context, id int64) (*City, error) {
	var c City
	err := s.pool.QueryRow(ctx, `SELECT id, name, state, name_key FROM cities WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.State, &c.NameKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "company: get city %d", id)
	}
	return &c, nil
}

// FindCitiesByKey returns every city whose folded name equals nameKey.
func (s *PostgresRegistry) FindCitiesByKey(ctx context.Context, nameKey string) ([]City, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, state, name_key FROM cities WHERE name_key = $1 ORDER BY id`, nameKey)
	if err != nil {
		return nil, eris.Wrap(err, "company: find cities")
	}
	defer rows.Close()

	var cities []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.ID, &c.Name, &c.State, &c.NameKey); err != nil {
			return nil, eris.Wrap(err, "company: scan city")
		}
		cities = append(cities, c)
	}
	return cities, eris.Wrap(rows.Err(), "company: find cities iterate")
}

// InsertCity adds a catalog city. Used by seeding, never by imports.
func (s *PostgresRegistry) InsertCity(ctx context.Context, c *City) error {
	c.NameKey = normalize.Key(c.Name)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cities (name, state, name_key) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.State, c.NameKey,
	).Scan(&c.ID)
	return eris.Wrap(err, "company: insert city")
}

// GetNiche fetches a niche by ID.
func (s *PostgresRegistry) GetNiche(ctx context.Context, id int64) (*Niche, error) {
	return s.queryNiche(ctx, `SELECT id, label, label_key FROM niches WHERE id = $1`, id)
}

// FindNicheByKey fetches a niche by its folded label.
func (s *PostgresRegistry) FindNicheByKey(ctx context.Context, labelKey string) (*Niche, error) {
	return s.queryNiche(ctx, `SELECT id, label, label_key FROM niches WHERE label_key = $1`, labelKey)
}

func (s *PostgresRegistry) queryNiche(ctx context.Context, sql string, arg any) (*Niche, error) {
	var n Niche
	err := s.pool.QueryRow(ctx, sql, arg).Scan(&n.ID, &n.Label, &n.LabelKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "company: get niche")
	}
	return &n, nil
}

// EnsureNiche returns the niche for label, inserting it on first sight.
func (s *PostgresRegistry) EnsureNiche(ctx context.Context, label string) (*Niche, error) {
	key := normalize.Key(label)
	if key == "" {
		return nil, eris.New("company: ensure niche: empty label")
	}
	var n Niche
	err := s.pool.QueryRow(ctx, `
		INSERT INTO niches (label, label_key) VALUES ($1, $2)
		ON CONFLICT (label_key) DO UPDATE SET label_key = EXCLUDED.label_key
		RETURNING id, label, label_key`,
		normalize.Address(label), key,
	).Scan(&n.ID, &n.Label, &n.LabelKey)
	if err != nil {
		return nil, eris.Wrapf(err, "company: ensure niche %q", label)
	}
	return &n, nil
}

// companyColumns is the standard column list for company queries.
const companyColumns = `c.id, c.trade_name, c.normalized_name, c.phone, c.normalized_phone,
	c.whatsapp, c.normalized_whatsapp, c.address, c.website, c.normalized_website,
	c.normalized_address, c.city_id, c.status, c.quality_score, c.source, c.source_run_id,
	c.created_at, c.updated_at`

func companyDests(c *Company) []any {
	return []any{
		&c.ID, &c.TradeName, &c.NormalizedName, &c.Phone, &c.NormalizedPhone,
		&c.WhatsApp, &c.NormalizedWhatsApp, &c.Address, &c.Website, &c.NormalizedWebsite,
		&c.NormalizedAddress, &c.CityID, &c.Status, &c.QualityScore, &c.Source, &c.SourceRunID,
		&c.CreatedAt, &c.UpdatedAt,
	}
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCompanies(rows rowScanner) ([]Company, error) {
	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(companyDests(&c)...); err != nil {
			return nil, eris.Wrap(err, "company: scan")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "company: scan iterate")
}
