// Package cli provides the command-line interface for metricgrid.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metricgrid-labs/metricgrid/internal/cache"
	"github.com/metricgrid-labs/metricgrid/internal/config"
	"github.com/metricgrid-labs/metricgrid/internal/materialize"
	"github.com/metricgrid-labs/metricgrid/internal/metric"
	"github.com/metricgrid-labs/metricgrid/internal/state"
	"github.com/metricgrid-labs/metricgrid/internal/warehouse"
)

// App holds the wired components for one CLI invocation. Components
// are constructed once here and passed explicitly; there are no
// process-wide singletons.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *state.SQLiteStore
	Warehouse warehouse.Adapter
	Cache     *cache.Client
	Evaluator *metric.Evaluator
	Resolver  *metric.Resolver
	Worker    *materialize.Worker
}

// NewApp opens the datastore and, when configured, the warehouse, and
// wires the metric and materialization components.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}

	var primary cache.Store
	if cfg.Cache != nil && cfg.Cache.RedisAddr != "" {
		primary = cache.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}))
	}
	cacheClient := cache.NewClient(primary, logger)
	var cacheTTL time.Duration
	if cfg.Cache != nil {
		cacheTTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
		if cfg.Cache.SweepSeconds > 0 {
			cacheClient.StartSweeper(ctx, time.Duration(cfg.Cache.SweepSeconds)*time.Second)
		}
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Cache:     cacheClient,
		Evaluator: metric.NewEvaluator(store, logger),
	}

	if cfg.Warehouse != nil {
		if err := cfg.Warehouse.Validate(); err != nil {
			_ = store.Close()
			return nil, err
		}
		wh, err := warehouse.Open(ctx, cfg.Warehouse.ToAdapterConfig(), logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		app.Warehouse = wh
		app.Resolver = metric.NewResolver(store, cacheClient, wh, cacheTTL, logger)
		app.Worker = materialize.NewWorker(store, materialize.NewEngine(store, wh, logger), logger)
	}

	return app, nil
}

// Close releases the app's resources, waiting for in-flight jobs.
func (a *App) Close() error {
	if a.Worker != nil {
		a.Worker.Wait()
	}
	if a.Warehouse != nil {
		_ = a.Warehouse.Close()
	}
	return a.Store.Close()
}

// requireWarehouse fails commands that need the live warehouse when
// none is configured.
func (a *App) requireWarehouse() error {
	if a.Warehouse == nil {
		return fmt.Errorf("no warehouse configured: set warehouse.type in %s", config.ConfigFileName)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
