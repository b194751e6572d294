package secrets

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
)

// PostgresStore keeps sealed secrets in integration_secrets.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the secrets table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS integration_secrets (
			name       TEXT PRIMARY KEY,
			sealed     BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return eris.Wrap(err, "secrets: migrate")
}

// LoadSecret implements Store.
func (s *PostgresStore) LoadSecret(ctx context.Context, name string) ([]byte, error) {
	var sealed []byte
	err := s.pool.QueryRow(ctx, `SELECT sealed FROM integration_secrets WHERE name = $1`, name).Scan(&sealed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "secrets: load")
	}
	return sealed, nil
}

// SaveSecret implements Store.
func (s *PostgresStore) SaveSecret(ctx context.Context, name string, sealed []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO integration_secrets (name, sealed, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET sealed = EXCLUDED.sealed, updated_at = now()`,
		name, sealed,
	)
	return eris.Wrap(err, "secrets: save")
}

// SQLiteStore keeps sealed secrets in a SQLite integration_secrets table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqlDB}
}

// Migrate creates the secrets table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS integration_secrets (
			name       TEXT PRIMARY KEY,
			sealed     BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`)
	return eris.Wrap(err, "secrets: sqlite migrate")
}

// LoadSecret implements Store.
func (s *SQLiteStore) LoadSecret(ctx context.Context, name string) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT sealed FROM integration_secrets WHERE name = ?`, name).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "secrets: load")
	}
	return sealed, nil
}

// SaveSecret implements Store.
func (s *SQLiteStore) SaveSecret(ctx context.Context, name string, sealed []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_secrets (name, sealed, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
		name, sealed, time.Now().UTC(),
	)
	return eris.Wrap(err, "secrets: save")
}
