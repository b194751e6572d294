// Package export flattens runs, records and companies into tabular rows and
// writes them as CSV or XLSX.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/normalize"
)

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Kind selects what a run export contains.
type Kind string

// Export kinds.
const (
	KindRun       Kind = "run"
	KindRecords   Kind = "records"
	KindCompanies Kind = "companies"
)

// ParseKind accepts run, records or companies. Empty means records.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindRecords:
		return KindRecords, nil
	case KindRun:
		return KindRun, nil
	case KindCompanies:
		return KindCompanies, nil
	default:
		return "", eris.Errorf("export: unknown kind %q", s)
	}
}

// Table is a header plus string rows.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

var runHeaders = []string{
	"id", "source", "status", "city_id", "niche_id", "query", "limit", "dry_run",
	"found", "inserted", "updated", "conflicts", "errors", "deduped",
	"error", "created_at", "finished_at", "invalidated_by",
}

// RunTable flattens runs, one row each.
func RunTable(runs []importer.Run) Table {
	t := Table{Name: "runs", Headers: runHeaders}
	for _, r := range runs {
		t.Rows = append(t.Rows, []string{
			r.ID,
			string(r.Source),
			string(r.Status),
			formatID(r.CityID),
			formatID(r.NicheID),
			deref(r.Query),
			strconv.Itoa(r.Limit),
			strconv.FormatBool(r.DryRun),
			strconv.Itoa(r.Counters.Found),
			strconv.Itoa(r.Counters.Inserted),
			strconv.Itoa(r.Counters.Updated),
			strconv.Itoa(r.Counters.Conflicts),
			strconv.Itoa(r.Counters.Errors),
			strconv.Itoa(r.Counters.Deduped),
			r.Error,
			formatTime(&r.CreatedAt),
			formatTime(r.FinishedAt),
			r.InvalidatedBy,
		})
	}
	return t
}

var recordHeaders = []string{
	"id", "run_id", "position", "status", "reason", "company_id", "matched_company_id", "match_rule",
	"city_id", "niche_id", "dedupe_key",
	"name", "phone", "whatsapp", "address", "website", "city", "niche", "source",
	"normalized_name", "normalized_phone", "changed_fields",
	"published_by", "published_at", "publish_mode",
}

// RecordTable flattens records with their normalized projection.
func RecordTable(records []importer.Record) Table {
	t := Table{Name: "records", Headers: recordHeaders}
	for _, r := range records {
		p := r.Projection
		var by, at, mode string
		if r.Publish != nil {
			by, at, mode = r.Publish.By, formatTime(&r.Publish.At), string(r.Publish.Mode)
		}
		t.Rows = append(t.Rows, []string{
			r.ID,
			r.RunID,
			strconv.Itoa(r.Position),
			string(r.Status),
			r.Reason,
			formatID(r.CompanyID),
			formatID(p.MatchedCompanyID),
			p.MatchRule,
			formatID(r.CityID),
			formatID(r.NicheID),
			deref(r.DedupeKey),
			p.Name, p.Phone, p.WhatsApp, p.Address, p.Website, p.City, p.Niche, p.Source,
			p.NormalizedName,
			p.NormalizedPhone,
			strings.Join(p.ChangedFields, ";"),
			by, at, mode,
		})
	}
	return t
}

var companyHeaders = []string{
	"id", "trade_name", "phone", "whatsapp", "address", "website", "city_id",
	"status", "quality_score", "source", "source_run_id", "created_at", "updated_at",
	"phone_canonical",
}

// CompanyTable flattens companies.
func CompanyTable(companies []company.Company) Table {
	t := Table{Name: "companies", Headers: companyHeaders}
	for _, c := range companies {
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(c.ID, 10),
			c.TradeName,
			c.Phone,
			c.WhatsApp,
			c.Address,
			c.Website,
			formatID(c.CityID),
			string(c.Status),
			strconv.Itoa(c.QualityScore),
			string(c.Source),
			deref(c.SourceRunID),
			formatTime(&c.CreatedAt),
			formatTime(&c.UpdatedAt),
			normalize.Phone(c.Phone),
		})
	}
	return t
}

// Source is what a run export reads.
type Source interface {
	GetRun(ctx context.Context, runID string) (*importer.Run, error)
	ListRecords(ctx context.Context, filter importer.RecordFilter) (*importer.RecordPage, error)
	ListCompaniesByRun(ctx context.Context, runID string) ([]company.Company, error)
}

// RunExport builds the table of one kind for a run. Records are read page
// by page in upload order.
func RunExport(ctx context.Context, src Source, runID string, kind Kind) (Table, error) {
	switch kind {
	case KindRun:
		run, err := src.GetRun(ctx, runID)
		if err != nil {
			return Table{}, err
		}
		return RunTable([]importer.Run{*run}), nil
	case KindCompanies:
		companies, err := src.ListCompaniesByRun(ctx, runID)
		if err != nil {
			return Table{}, err
		}
		return CompanyTable(companies), nil
	case KindRecords:
		var all []importer.Record
		for offset := 0; ; {
			page, err := src.ListRecords(ctx, importer.RecordFilter{
				RunID:  runID,
				Limit:  importer.MaxPageSize,
				Offset: offset,
			})
			if err != nil {
				return Table{}, err
			}
			all = append(all, page.Records...)
			offset += len(page.Records)
			if len(page.Records) == 0 || offset >= page.Total {
				break
			}
		}
		return RecordTable(all), nil
	default:
		return Table{}, eris.Errorf("export: unknown kind %q", kind)
	}
}

// Write encodes t in the given format.
func Write(w io.Writer, format Format, t Table) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, t)
	case FormatCSV, "":
		return WriteCSV(w, t)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

// WriteCSV writes t as CSV with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return eris.Wrap(err, "export: write CSV header")
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush CSV")
}

// WriteXLSX writes t as a single-sheet workbook.
func WriteXLSX(w io.Writer, t Table) error {
	f := xlsx.NewFile()
	name := t.Name
	if name == "" {
		name = "export"
	}
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	appendRow(sheet, t.Headers)
	for _, row := range t.Rows {
		appendRow(sheet, row)
	}
	return eris.Wrap(f.Write(w), "export: write XLSX")
}

func appendRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
