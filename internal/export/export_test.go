package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
)

type fakeSource struct {
	run       *importer.Run
	records   []importer.Record
	companies []company.Company
	calls     int
}

func (f *fakeSource) GetRun(context.Context, string) (*importer.Run, error) { return f.run, nil }

func (f *fakeSource) ListRecords(_ context.Context, filter importer.RecordFilter) (*importer.RecordPage, error) {
	f.calls++
	end := min(filter.Offset+2, len(f.records))
	start := min(filter.Offset, end)
	return &importer.RecordPage{Records: f.records[start:end], Total: len(f.records)}, nil
}

func (f *fakeSource) ListCompaniesByRun(context.Context, string) ([]company.Company, error) {
	return f.companies, nil
}

func TestParseFormatAndKind(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("pdf")
	assert.Error(t, err)

	k, err := ParseKind("companies")
	require.NoError(t, err)
	assert.Equal(t, KindCompanies, k)
	_, err = ParseKind("everything")
	assert.Error(t, err)
}

func TestRunExport_RecordsPaged(t *testing.T) {
	cid := int64(9)
	src := &fakeSource{}
	for i := 0; i < 5; i++ {
		src.records = append(src.records, importer.Record{
			ID:       "rec-" + string(rune('a'+i)),
			Position: i,
			Status:   importer.RecordConflict,
			Projection: importer.Projection{
				Name:             "Loja",
				MatchedCompanyID: &cid,
				ChangedFields:    []string{"phone", "address"},
			},
		})
	}

	tbl, err := RunExport(context.Background(), src, "run-1", KindRecords)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 5)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, "rec-a", tbl.Rows[0][0])
	assert.Equal(t, "9", tbl.Rows[0][6])
	assert.Equal(t, "phone;address", tbl.Rows[0][21])
}

func TestWriteCSV(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	q := "padaria"
	tbl := RunTable([]importer.Run{{
		ID:        "run-1",
		Source:    importer.SourceAPISearch,
		Status:    importer.RunDone,
		Query:     &q,
		Counters:  importer.Counters{Found: 3, Inserted: 2, Deduped: 1},
		CreatedAt: now,
	}})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, tbl))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, runHeaders, rows[0])
	assert.Equal(t, "padaria", rows[1][5])
	assert.Equal(t, "3", rows[1][8])
	assert.Equal(t, "2025-03-01T12:00:00Z", rows[1][15])
	assert.Empty(t, rows[1][16])
}

func TestWriteXLSX(t *testing.T) {
	city := int64(4)
	tbl := CompanyTable([]company.Company{{ID: 1, TradeName: "Padaria Sol", CityID: &city, Status: company.StatusActive, QualityScore: 90}})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, tbl))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet["companies"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "trade_name", sheet.Rows[0].Cells[1].String())
	assert.Equal(t, "Padaria Sol", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "90", sheet.Rows[1].Cells[8].String())
}

func TestCompanyTable_CanonicalPhone(t *testing.T) {
	tbl := CompanyTable([]company.Company{
		{ID: 1, TradeName: "Padaria Sol", Phone: "(11) 3456-7890"},
		{ID: 2, TradeName: "Sem Telefone"},
	})

	last := len(companyHeaders) - 1
	assert.Equal(t, "phone_canonical", tbl.Headers[last])
	assert.Equal(t, "(11) 3456-7890", tbl.Rows[0][2])
	assert.Equal(t, "+551134567890", tbl.Rows[0][last])
	assert.Empty(t, tbl.Rows[1][last])
}
