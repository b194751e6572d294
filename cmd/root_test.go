package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range c.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd)

	expected := []string{"import", "runs", "records", "publish", "export", "secrets", "migrate", "serve", "catalog"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "buscai-import", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestNestedSubcommands(t *testing.T) {
	tests := []struct {
		parent *cobra.Command
		want   []string
	}{
		{importCmd, []string{"api", "upload"}},
		{runsCmd, []string{"list", "show", "invalidate", "health"}},
		{recordsCmd, []string{"list", "resolve"}},
		{publishCmd, []string{"run", "record"}},
		{secretsCmd, []string{"generate-key", "set-serpapi-key", "rotate"}},
		{catalogCmd, []string{"seed"}},
	}
	for _, tt := range tests {
		t.Run(tt.parent.Name(), func(t *testing.T) {
			names := subcommandNames(tt.parent)
			for _, name := range tt.want {
				assert.True(t, names[name], "%s should have subcommand %q", tt.parent.Name(), name)
			}
		})
	}
}

func TestImportAPICommand_Flags(t *testing.T) {
	for _, name := range []string{"city", "niche", "query", "limit", "api-key", "ignore-duplicates", "update-existing", "dry-run", "activate", "actor"} {
		assert.NotNil(t, importAPICmd.Flags().Lookup(name), "import api should have --%s flag", name)
	}
}

func TestImportUploadCommand_Flags(t *testing.T) {
	for _, name := range []string{"mapping", "city", "niche", "dry-run"} {
		assert.NotNil(t, importUploadCmd.Flags().Lookup(name), "import upload should have --%s flag", name)
	}
}

func TestRunsListCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "csv", flag.DefValue)

	flag = exportCmd.Flags().Lookup("kind")
	require.NotNil(t, flag)
	assert.Equal(t, "records", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s", name)
	}
}
