package company

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
)

func newTestRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()
	sqlDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck
	reg := NewSQLiteRegistry(sqlDB)
	require.NoError(t, reg.Migrate(context.Background()))
	return reg
}

func seedCity(t *testing.T, reg *SQLiteRegistry, name, state string) *City {
	t.Helper()
	c := &City{Name: name, State: state}
	require.NoError(t, reg.InsertCity(context.Background(), c))
	return c
}

func TestSQLiteRegistry_InsertAndGet(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	city := seedCity(t, reg, "São Paulo", "SP")

	c := &Company{
		TradeName: "  Padaria   Central ",
		Phone:     "(11) 98765-4321",
		Website:   "https://www.Padaria.com.br/",
		CityID:    &city.ID,
		Source:    SourceManual,
	}
	require.NoError(t, reg.InsertCompany(ctx, c))
	assert.NotZero(t, c.ID)
	assert.Equal(t, StatusPending, c.Status)

	got, err := reg.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "padaria central", got.NormalizedName)
	assert.Equal(t, "5511987654321", got.NormalizedPhone)
	assert.Equal(t, "padaria.com.br", got.NormalizedWebsite)
	require.NotNil(t, got.CityID)
	assert.Equal(t, city.ID, *got.CityID)
	assert.Nil(t, got.SourceRunID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteRegistry_GetCompany_Missing(t *testing.T) {
	reg := newTestRegistry(t)
	got, err := reg.GetCompany(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteRegistry_UpdateCompany(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	c := &Company{TradeName: "Bar do Zé", Source: SourceSerpAPI}
	require.NoError(t, reg.InsertCompany(ctx, c))

	runID := "run-1"
	c.Phone = "11 3333-4444"
	c.Status = StatusActive
	c.SourceRunID = &runID
	require.NoError(t, reg.UpdateCompany(ctx, c))

	got, err := reg.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "551133334444", got.NormalizedPhone)
	assert.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.SourceRunID)
	assert.Equal(t, runID, *got.SourceRunID)

	byRun, err := reg.ListCompaniesByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Equal(t, c.ID, byRun[0].ID)
}

func TestSQLiteRegistry_UpdateCompany_NotFound(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.UpdateCompany(context.Background(), &Company{ID: 99, TradeName: "x", Source: SourceManual})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "company: update 99")
}

func TestSQLiteRegistry_FindByNormalizedPhone_MatchesWhatsApp(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	c := &Company{TradeName: "Oficina", WhatsApp: "+55 11 91234-5678", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))

	found, err := reg.FindByNormalizedPhone(ctx, "5511912345678", nil, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c.ID, found[0].ID)

	found, err = reg.FindByNormalizedPhone(ctx, "", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteRegistry_FindByName_RestrictsCity(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	sp := seedCity(t, reg, "São Paulo", "SP")
	rj := seedCity(t, reg, "Rio de Janeiro", "RJ")

	require.NoError(t, reg.InsertCompany(ctx, &Company{TradeName: "Pizzaria Roma", CityID: &sp.ID, Source: SourceManual}))
	require.NoError(t, reg.InsertCompany(ctx, &Company{TradeName: "pizzaria roma", CityID: &rj.ID, Source: SourceManual}))

	all, err := reg.FindByNormalizedNameAndCity(ctx, "pizzaria roma", nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inRJ, err := reg.FindByNormalizedNameAndCity(ctx, "pizzaria roma", &rj.ID, 10)
	require.NoError(t, err)
	require.Len(t, inRJ, 1)
	assert.Equal(t, rj.ID, *inRJ[0].CityID)
}

func TestSQLiteRegistry_FindByNameAndAddress_FollowsUpdate(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := &Company{TradeName: "Padaria Central", Address: "Rua A, 10", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))

	found, err := reg.FindByNormalizedNameAndAddress(ctx, "padaria central", "Rua A, 10", nil, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, c.ID, found[0].ID)

	c.Address = "Rua B, 20"
	require.NoError(t, reg.UpdateCompany(ctx, c))

	found, err = reg.FindByNormalizedNameAndAddress(ctx, "padaria central", "Rua A, 10", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	none, err := reg.FindByNormalizedNameAndAddress(ctx, "padaria central", "", nil, 10)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteRegistry_Cities(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	seedCity(t, reg, "São José", "SC")
	seedCity(t, reg, "Sao Jose", "SP")

	cities, err := reg.FindCitiesByKey(ctx, "sao_jose")
	require.NoError(t, err)
	assert.Len(t, cities, 2)

	got, err := reg.GetCity(ctx, cities[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "São José", got.Name)

	missing, err := reg.GetCity(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteRegistry_EnsureNiche_Idempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.EnsureNiche(ctx, "Pet Shop")
	require.NoError(t, err)
	second, err := reg.EnsureNiche(ctx, "  pet  shop ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Pet Shop", second.Label)

	byKey, err := reg.FindNicheByKey(ctx, "pet_shop")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)

	_, err = reg.EnsureNiche(ctx, "  ")
	assert.Error(t, err)
}

func TestSQLiteRegistry_LinkCompanyToNiche_Idempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	c := &Company{TradeName: "Vet", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))
	n, err := reg.EnsureNiche(ctx, "Veterinário")
	require.NoError(t, err)

	require.NoError(t, reg.LinkCompanyToNiche(ctx, c.ID, n.ID))
	require.NoError(t, reg.LinkCompanyToNiche(ctx, c.ID, n.ID))

	ids, err := reg.NicheIDs(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{n.ID}, ids)
}
