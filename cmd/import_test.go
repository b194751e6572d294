package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/schema"
)

func TestParseMapping(t *testing.T) {
	m, err := parseMapping(strings.NewReader("name: Nome Fantasia\nphone: Telefone\n"))
	require.NoError(t, err)
	assert.Equal(t, schema.Mapping{schema.FieldName: "Nome Fantasia", schema.FieldPhone: "Telefone"}, m)
}

func TestParseMapping_Empty(t *testing.T) {
	m, err := parseMapping(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestParseMapping_UnknownField(t *testing.T) {
	_, err := parseMapping(strings.NewReader("email: E-mail\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mapping field "email"`)
}

func TestParseMapping_Invalid(t *testing.T) {
	_, err := parseMapping(strings.NewReader("- not\n- a map\n"))
	assert.Error(t, err)
}

func TestBuildStageRequest_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rows":[{"nome":"Padaria Sol","telefone":11988880000}]}`), 0o644))

	req, err := buildStageRequest(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, req.Rows, 1)
	assert.Equal(t, "rows.json", req.FileName)
	assert.Nil(t, req.Mapping)
}

func TestBuildStageRequest_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := buildStageRequest(context.Background(), path, "")
	assert.Error(t, err)
}

func TestOptionsFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addOptionFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--dry-run", "--ignore-duplicates"}))

	assert.Equal(t, importer.Options{DryRun: true, IgnoreDuplicates: true}, optionsFromFlags(cmd))
}
