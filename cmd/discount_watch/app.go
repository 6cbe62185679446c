package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/config"
	"github.com/jonathan/discount-watch/internal/db"
	"github.com/jonathan/discount-watch/internal/observability"
	"github.com/jonathan/discount-watch/internal/snapshot"
)

// app holds the components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  db.Store // nil for the memory driver
	cache  *snapshot.Cache
}

// openApp loads the configuration, opens the store, and restores the
// last persisted snapshot.
func openApp(ctx context.Context, path string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if cfg.Store.Driver != config.DriverMemory {
		a.store, err = db.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
		a.cache = snapshot.New(a.store)
	} else {
		a.cache = snapshot.New(nil)
	}

	if err := a.cache.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("snapshot restored", "version", a.cache.View().Version, "driver", cfg.Store.Driver)
	return a, nil
}

// orchestrator wires the configured sources into an orchestrator.
func (a *app) orchestrator() (*aggregate.Orchestrator, error) {
	srcs, err := a.cfg.BuildSources(a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build sources: %w", err)
	}

	opts := []aggregate.Option{
		aggregate.WithLogger(a.logger),
		aggregate.WithNotifier(a.cfg.Notifier(a.logger)),
	}
	if a.store != nil {
		opts = append(opts, aggregate.WithRecorder(a.store))
	}
	return aggregate.New(srcs, a.cache, opts...)
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
