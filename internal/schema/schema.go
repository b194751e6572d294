// Package schema maps arbitrary upload columns onto listing fields and
// resolves free-text city and niche values against the registry catalogs.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// Field is a semantic listing attribute an upload column can feed.
type Field string

// Known fields.
const (
	FieldName     Field = "name"
	FieldPhone    Field = "phone"
	FieldWhatsApp Field = "whatsapp"
	FieldAddress  Field = "address"
	FieldWebsite  Field = "website"
	FieldCity     Field = "city"
	FieldNiche    Field = "niche"
	FieldSource   Field = "source"
)

// FieldSynonyms lists the normalized headers that feed one field, in
// priority order.
type FieldSynonyms struct {
	Field    Field
	Synonyms []string
}

// Synonyms is the header table consulted when no explicit mapping column
// yields a value. Entries are already in normalize.Key form.
var Synonyms = []FieldSynonyms{
	{FieldName, []string{"name", "nome", "nome_fantasia", "empresa", "razao_social", "trade_name", "business_name", "estabelecimento", "title"}},
	{FieldPhone, []string{"phone", "telefone", "fone", "tel", "phone_number", "telefone_1", "celular", "contato"}},
	{FieldWhatsApp, []string{"whatsapp", "whats", "wpp", "zap", "whatsapp_number"}},
	{FieldAddress, []string{"address", "endereco", "logradouro", "endereco_completo", "rua"}},
	{FieldWebsite, []string{"website", "site", "url", "web", "pagina"}},
	{FieldCity, []string{"city", "cidade", "municipio", "localidade"}},
	{FieldNiche, []string{"niche", "nicho", "categoria", "ramo", "segmento", "category"}},
	{FieldSource, []string{"source", "fonte", "origem"}},
}

// Fields returns every field in table order.
func Fields() []Field {
	out := make([]Field, len(Synonyms))
	for i, s := range Synonyms {
		out[i] = s.Field
	}
	return out
}

// Mapping pins a field to a named upload column. Column names are matched
// after key normalization, so "Nome Fantasia" and "nome_fantasia" agree.
type Mapping map[Field]string

// Row is an upload row with normalized keys and text values.
type Row map[string]string

// NormalizeRow folds keys with normalize.Key and renders values as text.
// When two headers fold to the same key the first non-empty value in
// header order wins.
func NormalizeRow(raw map[string]any) Row {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Row, len(raw))
	for _, k := range keys {
		nk := normalize.Key(k)
		if nk == "" {
			continue
		}
		v := CellText(raw[k])
		if cur, ok := out[nk]; ok && cur != "" {
			continue
		}
		out[nk] = v
	}
	return out
}

// CellText renders a decoded cell as trimmed text. Integral floats drop
// their fraction so phone numbers parsed from JSON or spreadsheets survive.
func CellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// IsBlank reports whether every cell of the row is empty.
func IsBlank(raw map[string]any) bool {
	for _, v := range raw {
		if CellText(v) != "" {
			return false
		}
	}
	return true
}

// ResolveValue returns the text for field: the mapped column when it yields
// a non-empty value, otherwise the first synonym present in the row.
func ResolveValue(row Row, field Field, mapping Mapping) string {
	if col, ok := mapping[field]; ok {
		if v := row[normalize.Key(col)]; v != "" {
			return v
		}
	}
	for _, fs := range Synonyms {
		if fs.Field != field {
			continue
		}
		for _, syn := range fs.Synonyms {
			if v := row[syn]; v != "" {
				return v
			}
		}
	}
	return ""
}

// ResolveAll resolves every known field for one row.
func ResolveAll(row Row, mapping Mapping) map[Field]string {
	out := make(map[Field]string, len(Synonyms))
	for _, f := range Fields() {
		if v := ResolveValue(row, f, mapping); v != "" {
			out[f] = v
		}
	}
	return out
}

var cityUFRe = regexp.MustCompile(`^(.*?)\s*[-/]\s*([A-Za-z]{2})$`)

// ParseCityText splits "São Paulo - SP" or "Campinas/SP" into a city name
// and an upper-case region code. Text without a suffix returns uf "".
func ParseCityText(s string) (name, uf string) {
	s = normalize.Address(s)
	m := cityUFRe.FindStringSubmatch(s)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return s, ""
	}
	return strings.TrimSpace(m[1]), strings.ToUpper(m[2])
}
