package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool sizing used when the config leaves a bound at zero.
const (
	defaultMaxConns = 10
	defaultMinConns = 2
)

// PoolConfig tunes the pgx pool. Zero fields fall back to the defaults.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
	// AppName is reported as application_name to the server.
	AppName string
}

// NewPool connects to Postgres and verifies the connection with a ping.
func NewPool(ctx context.Context, dsn string, pc PoolConfig) (*pgxpool.Pool, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}

	conf.MaxConns = orDefault(pc.MaxConns, defaultMaxConns)
	conf.MinConns = min(orDefault(pc.MinConns, defaultMinConns), conf.MaxConns)
	conf.MaxConnLifetime = 30 * time.Minute
	conf.MaxConnIdleTime = 5 * time.Minute
	if pc.AppName != "" {
		conf.ConnConfig.RuntimeParams["application_name"] = pc.AppName
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return pool, nil
}

func orDefault(v, fallback int32) int32 {
	if v > 0 {
		return v
	}
	return fallback
}
