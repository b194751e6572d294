package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// BulkCopy describes a COPY target. Rows are sent in chunks of BatchSize;
// zero or less sends everything in one COPY.
type BulkCopy struct {
	Table     string
	Columns   []string
	BatchSize int
}

// Copy streams rows into the target and returns how many were written.
// A chunk that reports fewer rows than it sent is an error.
func (b BulkCopy) Copy(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	size := b.BatchSize
	if size <= 0 {
		size = len(rows)
	}

	var written int64
	for len(rows) > 0 {
		chunk := rows[:min(size, len(rows))]
		rows = rows[len(chunk):]

		n, err := pool.CopyFrom(ctx, pgx.Identifier{b.Table}, b.Columns, pgx.CopyFromRows(chunk))
		if err != nil {
			return written, eris.Wrapf(err, "db: copy into %s after %d rows", b.Table, written)
		}
		written += n
		if n != int64(len(chunk)) {
			return written, eris.Errorf("db: copy into %s wrote %d of %d rows", b.Table, n, len(chunk))
		}
	}
	return written, nil
}
