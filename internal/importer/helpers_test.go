package importer

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
	"github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi"
	"github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi/mocks"
)

type testEnv struct {
	db       *sql.DB
	store    *SQLiteStore
	registry *company.SQLiteRegistry
	search   *mocks.MockClient
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqlDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck

	ctx := context.Background()
	registry := company.NewSQLiteRegistry(sqlDB)
	require.NoError(t, registry.Migrate(ctx))
	store := NewSQLiteStore(sqlDB, 2)
	require.NoError(t, store.Migrate(ctx))

	search := mocks.NewMockClient(t)
	svc := NewService(store, registry, search, StaticKey("test-key"), Config{DefaultLimit: 20})
	return &testEnv{db: sqlDB, store: store, registry: registry, search: search, svc: svc}
}

func (e *testEnv) city(t *testing.T, name, state string) *company.City {
	t.Helper()
	c := &company.City{Name: name, State: state}
	require.NoError(t, e.registry.InsertCity(context.Background(), c))
	return c
}

func (e *testEnv) niche(t *testing.T, label string) *company.Niche {
	t.Helper()
	n, err := e.registry.EnsureNiche(context.Background(), label)
	require.NoError(t, err)
	return n
}

func (e *testEnv) seedCompany(t *testing.T, c *company.Company) *company.Company {
	t.Helper()
	if c.Source == "" {
		c.Source = company.SourceClaimed
	}
	require.NoError(t, e.registry.InsertCompany(context.Background(), c))
	return c
}

func (e *testEnv) countCompanies(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM companies`).Scan(&n))
	return n
}

func (e *testEnv) countRuns(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM import_runs`).Scan(&n))
	return n
}

func (e *testEnv) records(t *testing.T, runID string) []Record {
	t.Helper()
	recs, err := e.store.ListRecords(context.Background(), RecordFilter{RunID: runID, Limit: MaxPageSize})
	require.NoError(t, err)
	return recs
}

func result(name, phone string) serpapi.Result {
	return serpapi.Result{
		Name:  name,
		Phone: phone,
		Raw:   []byte(`{"title":"` + name + `"}`),
	}
}

func ptr[T any](v T) *T { return &v }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// transitionFailStore rejects every status transition with err.
type transitionFailStore struct {
	Store
	err error
}

func (s transitionFailStore) TransitionRun(context.Context, string, RunStatus, RunStatus) error {
	return s.err
}

func (e *testEnv) serviceWithStore(store Store) *Service {
	return NewService(store, e.registry, e.search, StaticKey("test-key"), Config{DefaultLimit: 20})
}
