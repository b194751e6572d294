package company

import (
	"context"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRegistry(t *testing.T) (*PostgresRegistry, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRegistry(mock), mock
}

func TestPostgresRegistry_Migrate(t *testing.T) {
	reg, mock := newMockRegistry(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cities").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, reg.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_EnsureNiche(t *testing.T) {
	reg, mock := newMockRegistry(t)
	mock.ExpectQuery("INSERT INTO niches").
		WithArgs("Pet Shop", "pet_shop").
		WillReturnRows(pgxmock.NewRows([]string{"id", "label", "label_key"}).AddRow(int64(7), "Pet Shop", "pet_shop"))

	n, err := reg.EnsureNiche(context.Background(), " Pet   Shop ")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_EnsureNiche_EmptyLabel(t *testing.T) {
	reg, mock := newMockRegistry(t)
	_, err := reg.EnsureNiche(context.Background(), "!!")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_LinkCompanyToNiche(t *testing.T) {
	reg, mock := newMockRegistry(t)
	mock.ExpectExec("INSERT INTO company_niches").
		WithArgs(int64(1), int64(2)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, reg.LinkCompanyToNiche(context.Background(), 1, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_UpdateCompany_NotFound(t *testing.T) {
	reg, mock := newMockRegistry(t)
	mock.ExpectExec("UPDATE companies").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := reg.UpdateCompany(context.Background(), &Company{ID: 5, TradeName: "x", Source: SourceManual})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_FindCitiesByKey(t *testing.T) {
	reg, mock := newMockRegistry(t)
	mock.ExpectQuery("SELECT id, name, state, name_key FROM cities").
		WithArgs("sao_jose").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "state", "name_key"}).
			AddRow(int64(1), "São José", "SC", "sao_jose").
			AddRow(int64(2), "São José", "SP", "sao_jose"))

	cities, err := reg.FindCitiesByKey(context.Background(), "sao_jose")
	require.NoError(t, err)
	require.Len(t, cities, 2)
	assert.Equal(t, "SP", cities[1].State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_FindByNormalizedPhone_EmptySkipsQuery(t *testing.T) {
	reg, mock := newMockRegistry(t)
	found, err := reg.FindByNormalizedPhone(context.Background(), "", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_FindByNormalizedWebsite_QueryError(t *testing.T) {
	reg, mock := newMockRegistry(t)
	cityID := int64(3)
	mock.ExpectQuery("normalized_website").
		WithArgs("example.com", cityID, MaxMatches).
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := reg.FindByNormalizedWebsite(context.Background(), "example.com", &cityID, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find companies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRegistry_FindByNameAndAddress_FiltersInQuery(t *testing.T) {
	reg, mock := newMockRegistry(t)
	mock.ExpectQuery("c.normalized_name = \\$1 AND c.normalized_address = \\$2").
		WithArgs("padaria central", "Rua A, 10", MaxMatches).
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := reg.FindByNormalizedNameAndAddress(context.Background(), "padaria central", "Rua A, 10", nil, MaxMatches)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
