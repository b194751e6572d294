package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read. SheetName wins over
// SheetIndex; the zero value reads the first sheet.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string
}

// ReadXLSXRows decodes a workbook whose first non-blank row on the chosen
// sheet is the header. Blank rows are skipped.
func ReadXLSXRows(data []byte, opts XLSXOptions) ([]map[string]any, error) {
	book, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	sheet, err := opts.pick(book)
	if err != nil {
		return nil, err
	}

	var header []string
	var records [][]string
	for _, row := range sheet.Rows {
		cells, blank := cellStrings(row)
		if blank {
			continue
		}
		if header == nil {
			header = cells
		} else {
			records = append(records, cells)
		}
	}
	if header == nil {
		return nil, nil
	}
	return zipRows(header, records), nil
}

func (o XLSXOptions) pick(book *xlsx.File) (*xlsx.Sheet, error) {
	if o.SheetName != "" {
		if sheet, ok := book.Sheet[o.SheetName]; ok {
			return sheet, nil
		}
		return nil, eris.Errorf("xlsx: no sheet named %q", o.SheetName)
	}
	if o.SheetIndex < 0 || o.SheetIndex >= len(book.Sheets) {
		return nil, eris.Errorf("xlsx: sheet %d requested, workbook has %d", o.SheetIndex, len(book.Sheets))
	}
	return book.Sheets[o.SheetIndex], nil
}

// cellStrings renders a row as trimmed strings and reports whether every
// cell is empty.
func cellStrings(row *xlsx.Row) ([]string, bool) {
	if row == nil {
		return nil, true
	}
	blank := true
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = strings.TrimSpace(c.String())
		if out[i] != "" {
			blank = false
		}
	}
	return out, blank
}
