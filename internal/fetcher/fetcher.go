// Package fetcher reads operator uploads (CSV, XLSX, JSON) into header-keyed
// rows for the schema resolver.
package fetcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format identifies an upload encoding.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// MaxUploadBytes bounds how much of an upload is read into memory.
const MaxUploadBytes = 32 << 20

// DetectFormat infers the format from a file name extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", eris.Errorf("fetcher: unsupported upload %q", name)
	}
}

// ReadRows decodes r in the given format. Every row maps header to cell.
func ReadRows(ctx context.Context, format Format, r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read upload")
	}
	if len(data) > MaxUploadBytes {
		return nil, eris.Errorf("fetcher: upload exceeds %d bytes", MaxUploadBytes)
	}

	switch format {
	case FormatCSV:
		return ReadCSVRows(ctx, data)
	case FormatXLSX:
		return ReadXLSXRows(data, XLSXOptions{})
	case FormatJSON:
		return ReadJSONRows(ctx, bytes.NewReader(data))
	default:
		return nil, eris.Errorf("fetcher: unknown format %q", format)
	}
}

// ReadFile opens path and decodes it by extension.
func ReadFile(ctx context.Context, path string) ([]map[string]any, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadRows(ctx, format, f)
}

// zipRows pairs a header with each record. Short records get empty cells,
// extra cells without a header are dropped.
func zipRows(header []string, records [][]string) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		row := make(map[string]any, len(header))
		for i, h := range header {
			if strings.TrimSpace(h) == "" {
				continue
			}
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			row[h] = v
		}
		out = append(out, row)
	}
	return out
}
