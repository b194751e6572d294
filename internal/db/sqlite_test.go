package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite_Pragmas(t *testing.T) {
	handle, err := OpenSQLite(filepath.Join(t.TempDir(), "buscai.db"))
	require.NoError(t, err)
	defer handle.Close() //nolint:errcheck

	var mode string
	require.NoError(t, handle.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, handle.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenSQLite_Memory(t *testing.T) {
	handle, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer handle.Close() //nolint:errcheck

	_, err = handle.Exec("CREATE TABLE cities (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = handle.Exec("INSERT INTO cities (name) VALUES ('Campinas')")
	require.NoError(t, err)
}

func TestRequireAffected(t *testing.T) {
	handle, err := OpenSQLite(filepath.Join(t.TempDir(), "affected.db"))
	require.NoError(t, err)
	defer handle.Close() //nolint:errcheck

	_, err = handle.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	_, err = handle.Exec("INSERT INTO t (id) VALUES (1)")
	require.NoError(t, err)

	missing := errors.New("missing")
	res, err := handle.Exec("DELETE FROM t WHERE id = 1")
	require.NoError(t, err)
	assert.NoError(t, RequireAffected(res, missing))

	res, err = handle.Exec("DELETE FROM t WHERE id = 1")
	require.NoError(t, err)
	assert.ErrorIs(t, RequireAffected(res, missing), missing)
}
