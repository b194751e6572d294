package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSONRows_Array(t *testing.T) {
	rows, err := ReadJSONRows(context.Background(), strings.NewReader(`
		[{"nome": "A", "telefone": 11988880000}, {"nome": "B"}]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0]["nome"])
	assert.Equal(t, float64(11988880000), rows[0]["telefone"])
}

func TestReadJSONRows_Envelope(t *testing.T) {
	rows, err := ReadJSONRows(context.Background(), strings.NewReader(`{"rows": [{"nome": "A"}]}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0]["nome"])
}

func TestReadJSONRows_Empty(t *testing.T) {
	rows, err := ReadJSONRows(context.Background(), strings.NewReader("   "))
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestReadJSONRows_NotRows(t *testing.T) {
	_, err := ReadJSONRows(context.Background(), strings.NewReader(`"text"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '[' or '{'")

	_, err = ReadJSONRows(context.Background(), strings.NewReader(`[1, 2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode row 0")
}

func TestReadJSONRows_Malformed(t *testing.T) {
	_, err := ReadJSONRows(context.Background(), strings.NewReader("{"))
	require.Error(t, err)

	_, err = ReadJSONRows(context.Background(), strings.NewReader(`[{"nome": "A"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close array")
}

func TestReadJSONRows_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadJSONRows(ctx, strings.NewReader(`[{"nome": "A"}]`))
	require.ErrorIs(t, err, context.Canceled)
}
