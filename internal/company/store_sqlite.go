package company

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// SQLiteRegistry implements Registry using modernc.org/sqlite.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry wraps an open SQLite handle (see db.OpenSQLite).
func NewSQLiteRegistry(sqlDB *sql.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: sqlDB}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cities (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT NOT NULL,
	state    TEXT NOT NULL,
	name_key TEXT NOT NULL,
	UNIQUE (name_key, state)
);

CREATE TABLE IF NOT EXISTS niches (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT NOT NULL,
	label_key  TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
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
	city_id             INTEGER REFERENCES cities(id),
	status              TEXT NOT NULL DEFAULT 'pending',
	quality_score       INTEGER NOT NULL DEFAULT 0,
	source              TEXT NOT NULL,
	source_run_id       TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_companies_normalized_phone ON companies(normalized_phone);
CREATE INDEX IF NOT EXISTS idx_companies_normalized_whatsapp ON companies(normalized_whatsapp);
CREATE INDEX IF NOT EXISTS idx_companies_normalized_website ON companies(normalized_website);
CREATE INDEX IF NOT EXISTS idx_companies_name_city ON companies(normalized_name, city_id);
CREATE INDEX IF NOT EXISTS idx_companies_name_address ON companies(normalized_name, normalized_address);
CREATE INDEX IF NOT EXISTS idx_companies_source_run ON companies(source_run_id);

CREATE TABLE IF NOT EXISTS company_niches (
	company_id INTEGER NOT NULL REFERENCES companies(id),
	niche_id   INTEGER NOT NULL REFERENCES niches(id),
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_id, niche_id)
);
`

// Migrate creates the registry tables.
func (s *SQLiteRegistry) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "company: sqlite migrate")
}

// FindByNormalizedPhone matches digits against phone and whatsapp.
func (s *SQLiteRegistry) FindByNormalizedPhone(ctx context.Context, digits string, cityID *int64, limit int) ([]Company, error) {
	return s.findCompanies(ctx, "(c.normalized_phone = ? OR c.normalized_whatsapp = ?)", []any{digits, digits}, cityID, limit)
}

// FindByNormalizedWebsite matches the website key.
func (s *SQLiteRegistry) FindByNormalizedWebsite(ctx context.Context, websiteKey string, cityID *int64, limit int) ([]Company, error) {
	return s.findCompanies(ctx, "c.normalized_website = ?", []any{websiteKey}, cityID, limit)
}

// FindByNormalizedNameAndCity matches the normalized trade name.
func (s *SQLiteRegistry) FindByNormalizedNameAndCity(ctx context.Context, name string, cityID *int64, limit int) ([]Company, error) {
	return s.findCompanies(ctx, "c.normalized_name = ?", []any{name}, cityID, limit)
}

// FindByNormalizedNameAndAddress matches normalized name and address together.
func (s *SQLiteRegistry) FindByNormalizedNameAndAddress(ctx context.Context, name, address string, cityID *int64, limit int) ([]Company, error) {
	if address == "" {
		return nil, nil
	}
	return s.findCompanies(ctx, "c.normalized_name = ? AND c.normalized_address = ?", []any{name, address}, cityID, limit)
}

func (s *SQLiteRegistry) findCompanies(ctx context.Context, cond string, args []any, cityID *int64, limit int) ([]Company, error) {
	if args[0] == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = MaxMatches
	}
	query := `SELECT ` + companyColumns + ` FROM companies c WHERE ` + cond
	if cityID != nil {
		query += ` AND c.city_id = ?`
		args = append(args, *cityID)
	}
	query += ` ORDER BY c.id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "company: find companies")
	}
	defer rows.Close() //nolint:errcheck
	return scanCompanies(rows)
}

// GetCompany fetches a company by ID.
func (s *SQLiteRegistry) GetCompany(ctx context.Context, id int64) (*Company, error) {
	c := &Company{}
	err := s.db.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = ?`, id).
		Scan(companyDests(c)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "company: get %d", id)
	}
	return c, nil
}

// InsertCompany inserts a new company and sets its ID.
func (s *SQLiteRegistry) InsertCompany(ctx context.Context, c *Company) error {
	c.Normalize()
	if c.Status == "" {
		c.Status = StatusPending
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (
			trade_name, normalized_name, phone, normalized_phone,
			whatsapp, normalized_whatsapp, address, website, normalized_website,
			normalized_address, city_id, status, quality_score, source, source_run_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TradeName, c.NormalizedName, c.Phone, c.NormalizedPhone,
		c.WhatsApp, c.NormalizedWhatsApp, c.Address, c.Website, c.NormalizedWebsite,
		c.NormalizedAddress,
		c.CityID, string(c.Status), c.QualityScore, string(c.Source), c.SourceRunID,
		now, now,
	)
	if err != nil {
		return eris.Wrap(err, "company: insert")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "company: insert id")
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// UpdateCompany updates an existing company.
func (s *SQLiteRegistry) UpdateCompany(ctx context.Context, c *Company) error {
	c.Normalize()
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE companies SET
			trade_name=?, normalized_name=?, phone=?, normalized_phone=?,
			whatsapp=?, normalized_whatsapp=?, address=?, website=?, normalized_website=?,
			normalized_address=?, city_id=?, status=?, quality_score=?, source=?, source_run_id=?,
			updated_at=?
		WHERE id=?`,
		c.TradeName, c.NormalizedName, c.Phone, c.NormalizedPhone,
		c.WhatsApp, c.NormalizedWhatsApp, c.Address, c.Website, c.NormalizedWebsite,
		c.NormalizedAddress, c.CityID, string(c.Status), c.QualityScore, string(c.Source), c.SourceRunID,
		c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "company: update %d", c.ID)
	}
	return db.RequireAffected(res, eris.Wrapf(ErrNotFound, "company: update %d", c.ID))
}

// LinkCompanyToNiche links a company to a niche; repeated links are no-ops.
func (s *SQLiteRegistry) LinkCompanyToNiche(ctx context.Context, companyID, nicheID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO company_niches (company_id, niche_id, created_at) VALUES (?, ?, ?)`,
		companyID, nicheID, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "company: link %d to niche %d", companyID, nicheID)
	}
	return nil
}

// NicheIDs returns the niches a company is linked to.
func (s *SQLiteRegistry) NicheIDs(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT niche_id FROM company_niches WHERE company_id = ? ORDER BY niche_id`, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "company: niche ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "company: scan niche id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "company: niche ids iterate")
}

// ListCompaniesByRun returns companies last written by the given run.
func (s *SQLiteRegistry) ListCompaniesByRun(ctx context.Context, runID string) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies c WHERE c.source_run_id = ? ORDER BY c.id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "company: list by run")
	}
	defer rows.Close() //nolint:errcheck
	return scanCompanies(rows)
}

// GetCity fetches a city by ID.
func (s *SQLiteRegistry) GetCity(ctx context.Context, id int64) (*City, error) {
	var c City
	err := s.db.QueryRowContext(ctx, `SELECT id, name, state, name_key FROM cities WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.State, &c.NameKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "company: get city %d", id)
	}
	return &c, nil
}

// FindCitiesByKey returns every city whose folded name equals nameKey.
func (s *SQLiteRegistry) FindCitiesByKey(ctx context.Context, nameKey string) ([]City, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, state, name_key FROM cities WHERE name_key = ? ORDER BY id`, nameKey)
	if err != nil {
		return nil, eris.Wrap(err, "company: find cities")
	}
	defer rows.Close() //nolint:errcheck

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
func (s *SQLiteRegistry) InsertCity(ctx context.Context, c *City) error {
	c.NameKey = normalize.Key(c.Name)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cities (name, state, name_key) VALUES (?, ?, ?)`, c.Name, c.State, c.NameKey)
	if err != nil {
		return eris.Wrap(err, "company: insert city")
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "company: insert city id")
}

// GetNiche fetches a niche by ID.
func (s *SQLiteRegistry) GetNiche(ctx context.Context, id int64) (*Niche, error) {
	return s.queryNiche(ctx, `SELECT id, label, label_key FROM niches WHERE id = ?`, id)
}

// FindNicheByKey fetches a niche by its folded label.
func (s *SQLiteRegistry) FindNicheByKey(ctx context.Context, labelKey string) (*Niche, error) {
	return s.queryNiche(ctx, `SELECT id, label, label_key FROM niches WHERE label_key = ?`, labelKey)
}

func (s *SQLiteRegistry) queryNiche(ctx context.Context, query string, arg any) (*Niche, error) {
	var n Niche
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&n.ID, &n.Label, &n.LabelKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "company: get niche")
	}
	return &n, nil
}

// EnsureNiche returns the niche for label, inserting it on first sight.
func (s *SQLiteRegistry) EnsureNiche(ctx context.Context, label string) (*Niche, error) {
	key := normalize.Key(label)
	if key == "" {
		return nil, eris.New("company: ensure niche: empty label")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO niches (label, label_key, created_at) VALUES (?, ?, ?)`,
		normalize.Address(label), key, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "company: ensure niche %q", label)
	}
	n, err := s.FindNicheByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, eris.Errorf("company: ensure niche %q: not found after insert", label)
	}
	return n, nil
}
