package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRow(t *testing.T) {
	row := NormalizeRow(map[string]any{
		"Nome Fantasia": "  Padaria Sol ",
		"Telefone":      float64(11988880000),
		"Endereço":      "Rua A",
		"  ":            "dropped",
		"empty":         nil,
	})
	assert.Equal(t, Row{
		"nome_fantasia": "Padaria Sol",
		"telefone":      "11988880000",
		"endereco":      "Rua A",
		"empty":         "",
	}, row)
}

func TestNormalizeRow_CollidingHeadersKeepFirstNonEmpty(t *testing.T) {
	row := NormalizeRow(map[string]any{"Cidade": "", "cidade": "Campinas"})
	assert.Equal(t, "Campinas", row["cidade"])
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "", CellText(nil))
	assert.Equal(t, "12.5", CellText(12.5))
	assert.Equal(t, "5511999990000", CellText(float64(5511999990000)))
	assert.Equal(t, "7", CellText(7))
	assert.Equal(t, "true", CellText(true))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(map[string]any{"a": "", "b": nil, "c": "  "}))
	assert.False(t, IsBlank(map[string]any{"a": "", "b": 0}))
}

func TestResolveValue(t *testing.T) {
	row := Row{"nome": "Padaria", "empresa": "Outra", "categoria": "Padaria", "col_x": "Mercado"}

	assert.Equal(t, "Padaria", ResolveValue(row, FieldName, nil))
	assert.Equal(t, "Outra", ResolveValue(row, FieldName, Mapping{FieldName: "Empresa"}))
	assert.Equal(t, "Mercado", ResolveValue(row, FieldNiche, Mapping{FieldNiche: "COL X"}))
	// Mapped column that is empty falls back to synonyms.
	assert.Equal(t, "Padaria", ResolveValue(row, FieldNiche, Mapping{FieldNiche: "missing"}))
	assert.Equal(t, "", ResolveValue(row, FieldPhone, nil))
}

func TestResolveAll(t *testing.T) {
	row := Row{"nome": "A", "whatsapp": "11 9", "segmento": "Pet", "fonte": "planilha"}
	got := ResolveAll(row, nil)
	assert.Equal(t, map[Field]string{
		FieldName:     "A",
		FieldWhatsApp: "11 9",
		FieldNiche:    "Pet",
		FieldSource:   "planilha",
	}, got)
}

func TestParseCityText(t *testing.T) {
	tests := []struct {
		in, name, uf string
	}{
		{"São Paulo - SP", "São Paulo", "SP"},
		{"Campinas/sp", "Campinas", "SP"},
		{"  Rio de  Janeiro  ", "Rio de Janeiro", ""},
		{"Embu-Guaçu", "Embu-Guaçu", ""},
		{"- SP", "- SP", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, uf := ParseCityText(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.uf, uf)
		})
	}
}

func TestSynonymsAreKeys(t *testing.T) {
	seen := map[Field]bool{}
	for _, fs := range Synonyms {
		assert.False(t, seen[fs.Field], "duplicate field %s", fs.Field)
		seen[fs.Field] = true
		for _, s := range fs.Synonyms {
			assert.Regexp(t, `^[a-z0-9_]+$`, s)
		}
	}
	assert.Len(t, Fields(), 8)
}
