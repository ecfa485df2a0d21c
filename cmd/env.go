package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prism/internal/cost"
	"github.com/sells-group/prism/internal/optimizer"
	"github.com/sells-group/prism/internal/resilience"
	"github.com/sells-group/prism/internal/store"
)

// appEnv holds the dependencies shared by the commands.
type appEnv struct {
	Store   store.Store
	Tables  cost.Tables
	Source  *optimizer.StoreSource
	Service *optimizer.Service
}

func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadTables() (cost.Tables, error) {
	if cfg.Optimizer.CostTablesPath == "" {
		return cost.DefaultTables(), nil
	}
	return cost.LoadTables(cfg.Optimizer.CostTablesPath)
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
}

// initEnv validates the configuration for mode, opens and migrates the
// store and wires the optimizer service.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	tables, err := loadTables()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Tables: tables}

	if err := resilience.Do(ctx, retryConfig(), st.Migrate); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	year := cfg.Optimizer.CurrentYear(time.Now())
	env.Source = optimizer.NewStoreSource(st, cfg.Store.SnapshotTTL(), retryConfig())
	env.Service = optimizer.NewService(env.Source, tables, year)

	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("year", year),
		zap.Int("regions", len(tables.Regions())),
	)
	return env, nil
}
