package company

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_NoOverlap(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.InsertCompany(ctx, &Company{TradeName: "Alpha", Phone: "11 1111-1111", Source: SourceManual}))

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "Beta", Phone: "11 2222-2222", Website: "beta.com"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatcher_PhoneAcrossFormats(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := &Company{TradeName: "Alpha", Phone: "+55 (11) 98888-7777", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "Other", Phone: "11988887777"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, c.ID, matches[0].Company.ID)
	assert.Equal(t, RulePhone, matches[0].Rule)
}

func TestMatcher_CandidateWhatsAppHitsStoredPhone(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := &Company{TradeName: "Alpha", Phone: "11 3456-7890", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "x", WhatsApp: "(11) 3456-7890"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, c.ID, matches[0].Company.ID)
}

func TestMatcher_WebsiteIgnoresSchemeAndSlash(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := &Company{TradeName: "Alpha", Website: "http://www.alpha.com.br", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "Beta", Website: "HTTPS://alpha.com.br/"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleWebsite, matches[0].Rule)
}

func TestMatcher_NameAddressNeedsBoth(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := &Company{TradeName: "Padaria Central", Address: "Rua A, 10", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))
	m := NewMatcher(reg)

	matches, err := m.FindMatches(ctx, Candidate{Name: "padaria  central", Address: "Rua  A, 10"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleNameAddress, matches[0].Rule)

	matches, err = m.FindMatches(ctx, Candidate{Name: "Padaria Central", Address: "Rua B, 20"})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = m.FindMatches(ctx, Candidate{Name: "Padaria Central"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatcher_NameCityRequiresCity(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	city := seedCity(t, reg, "Campinas", "SP")
	c := &Company{TradeName: "Auto Center", CityID: &city.ID, Source: SourceSerpAPI}
	require.NoError(t, reg.InsertCompany(ctx, c))
	m := NewMatcher(reg)

	matches, err := m.FindMatches(ctx, Candidate{Name: "auto center"}, RuleNameCity)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = m.FindMatches(ctx, Candidate{Name: "auto center", CityID: &city.ID}, RulePhone, RuleNameCity)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, RuleNameCity, matches[0].Rule)
}

func TestMatcher_DeduplicatesAcrossRules(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	c := &Company{TradeName: "Alpha", Phone: "11 1111-1111", Website: "alpha.com", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, c))

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "Alpha", Phone: "1111111111", Website: "alpha.com"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, RulePhone, matches[0].Rule)
}

func TestMatcher_CapsResults(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < MaxMatches+5; i++ {
		require.NoError(t, reg.InsertCompany(ctx, &Company{
			TradeName: fmt.Sprintf("Filial %d", i),
			Website:   "rede.com",
			Source:    SourceManual,
		}))
	}

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "Rede", Website: "rede.com"})
	require.NoError(t, err)
	assert.Len(t, matches, MaxMatches)
}

func TestMatcher_NameAddressBeyondCommonName(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < MaxMatches; i++ {
		require.NoError(t, reg.InsertCompany(ctx, &Company{
			TradeName: "Padaria Central",
			Address:   fmt.Sprintf("Rua X, %d", i),
			Source:    SourceManual,
		}))
	}
	target := &Company{TradeName: "Padaria Central", Address: "Rua A, 10", Source: SourceManual}
	require.NoError(t, reg.InsertCompany(ctx, target))

	matches, err := NewMatcher(reg).FindMatches(ctx, Candidate{Name: "Padaria Central", Address: "Rua A, 10"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, target.ID, matches[0].Company.ID)
	assert.Equal(t, RuleNameAddress, matches[0].Rule)
}

func TestMatcher_UnknownRule(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := NewMatcher(reg).FindMatches(context.Background(), Candidate{Name: "x"}, Rule("fuzzy"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match: rule fuzzy")
}
