package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSVRows decodes an upload with a header row. The delimiter is sniffed
// from the header, a UTF-8 BOM is dropped and input that is not valid UTF-8
// is decoded as Latin-1. Cells are trimmed.
func ReadCSVRows(ctx context.Context, data []byte) ([]map[string]any, error) {
	data, err := toUTF8(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = SniffDelimiter(data)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var header []string
	var records [][]string
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: read cancelled")
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: record %d", line)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if header == nil {
			header = rec
			continue
		}
		records = append(records, rec)
	}

	if header == nil {
		return nil, nil
	}
	return zipRows(header, records), nil
}

func toUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, eris.Wrap(err, "csv: decode latin-1")
	}
	return decoded, nil
}

// SniffDelimiter picks the most frequent of ',', ';' and tab on the first
// line. Ties go to ','; pt-BR spreadsheet exports use ';'.
func SniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte{'\n'})
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
