package db

import (
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqlitePragmas run on every new handle. WAL lets the API read while an
// import writes; busy_timeout covers the short writer overlap.
var sqlitePragmas = []string{
	"journal_mode=WAL",
	"busy_timeout=5000",
	"synchronous=NORMAL",
	"foreign_keys=ON",
}

// OpenSQLite opens the SQLite file at path. In-memory databases are held
// to one connection so every query sees the same schema.
func OpenSQLite(path string) (*sql.DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		handle.SetMaxOpenConns(1)
	}

	for _, p := range sqlitePragmas {
		if _, err := handle.Exec("PRAGMA " + p); err != nil {
			_ = handle.Close()
			return nil, eris.Wrapf(err, "sqlite: pragma %s", p)
		}
	}
	return handle, nil
}

// RequireAffected returns notFound when res changed no rows.
func RequireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
