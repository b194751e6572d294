package fetcher

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// jsonEnvelope is the object form of a JSON upload: {"rows": [...]}.
type jsonEnvelope struct {
	Rows []map[string]any `json:"rows"`
}

// ReadJSONRows reads an upload that is either a bare array of objects or
// an envelope with a "rows" array. Blank input yields no rows.
func ReadJSONRows(ctx context.Context, r io.Reader) ([]map[string]any, error) {
	br := bufio.NewReader(r)
	lead, err := firstSignificantByte(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: peek upload")
	}

	dec := json.NewDecoder(br)
	switch lead {
	case '{':
		var env jsonEnvelope
		if err := dec.Decode(&env); err != nil {
			return nil, eris.Wrap(err, "json: decode envelope")
		}
		return env.Rows, nil
	case '[':
		return decodeRowArray(ctx, dec)
	default:
		return nil, eris.Errorf("json: expected '[' or '{', got %q", lead)
	}
}

func decodeRowArray(ctx context.Context, dec *json.Decoder) ([]map[string]any, error) {
	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "json: open array")
	}

	var rows []map[string]any
	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "json: read cancelled")
		}
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, eris.Wrapf(err, "json: decode row %d", i)
		}
		rows = append(rows, row)
	}

	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "json: close array")
	}
	return rows, nil
}

// firstSignificantByte skips JSON whitespace and leaves the reader
// positioned on the returned byte.
func firstSignificantByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
