package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/company"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/config"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/db"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/importer"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/resilience"
	"github.com/FelipeFraul/buscai-v2-sub002/internal/secrets"
	"github.com/FelipeFraul/buscai-v2-sub002/pkg/serpapi"
)

// registryStore is a company registry that owns its schema and catalog.
type registryStore interface {
	company.Registry
	Migrate(ctx context.Context) error
	InsertCity(ctx context.Context, c *company.City) error
}

type secretStore interface {
	secrets.Store
	Migrate(ctx context.Context) error
}

// appEnv holds the wired stores and services for one command.
type appEnv struct {
	Registry registryStore
	Store    importer.Store
	Secrets  secretStore
	// Vault is nil when no master key is configured.
	Vault   *secrets.Vault
	Service *importer.Service

	closeFn func()
}

// Close releases the database handle.
func (e *appEnv) Close() {
	if e.closeFn != nil {
		e.closeFn()
	}
}

// Migrate creates every table the pipeline uses.
func (e *appEnv) Migrate(ctx context.Context) error {
	if err := e.Registry.Migrate(ctx); err != nil {
		return err
	}
	if err := e.Store.Migrate(ctx); err != nil {
		return err
	}
	return e.Secrets.Migrate(ctx)
}

// initEnv opens the configured backend and wires the importer. mode is
// passed to config validation.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}
	switch cfg.Store.Driver {
	case "sqlite":
		sqlDB, err := db.OpenSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		env.Registry = company.NewSQLiteRegistry(sqlDB)
		env.Store = importer.NewSQLiteStore(sqlDB, cfg.Importer.BatchSize)
		env.Secrets = secrets.NewSQLiteStore(sqlDB)
		env.closeFn = func() { _ = sqlDB.Close() }
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
			AppName:  "buscai-import",
		})
		if err != nil {
			return nil, err
		}
		env.Registry = company.NewPostgresRegistry(pool)
		env.Store = importer.NewPostgresStore(pool, cfg.Importer.BatchSize)
		env.Secrets = secrets.NewPostgresStore(pool)
		env.closeFn = pool.Close
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if cfg.Secrets.MasterKey != "" {
		key, err := secrets.ParseMasterKey(cfg.Secrets.MasterKey)
		if err != nil {
			env.Close()
			return nil, err
		}
		v, err := secrets.NewVault(env.Secrets, key)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Vault = v
	}

	env.Service = importer.NewService(env.Store, env.Registry, newSearchClient(cfg.SerpAPI), keySource(env.Vault, cfg.SerpAPI), importer.Config{
		DefaultLimit:      cfg.Importer.DefaultLimit,
		ActivateCompanies: cfg.Importer.ActivateCompanies,
		MaxErrorSamples:   cfg.Importer.MaxErrorSamples,
	})

	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Bool("vault", env.Vault != nil),
	)
	return env, nil
}

func newSearchClient(sc config.SerpAPIConfig) serpapi.Client {
	opts := []serpapi.Option{
		serpapi.WithRetry(resilience.WithRetries(sc.MaxRetries)),
	}
	if sc.BaseURL != "" {
		opts = append(opts, serpapi.WithBaseURL(sc.BaseURL))
	}
	if sc.TimeoutSecs > 0 {
		opts = append(opts, serpapi.WithTimeout(time.Duration(sc.TimeoutSecs)*time.Second))
	}
	if sc.RateLimit > 0 {
		opts = append(opts, serpapi.WithRateLimit(sc.RateLimit))
	}
	return serpapi.NewClient("", opts...)
}

// keySource orders the search key lookups: vault first, then config.
func keySource(v *secrets.Vault, sc config.SerpAPIConfig) importer.KeySource {
	return importer.ChainKeySource{
		importer.VaultKey{Vault: v},
		importer.StaticKey(sc.APIKey),
	}
}
