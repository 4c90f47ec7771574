package commands

import (
	"context"
	"fmt"

	"libraryms/internal/maintenance"
	"libraryms/internal/metrics"
	"libraryms/internal/notification"
	"libraryms/internal/store/sqlstore"
)

// app holds the infrastructure shared by the commands.
type app struct {
	store   *sqlstore.Store
	metrics *metrics.Metrics
	sink    *notification.Sink
}

func openApp(ctx context.Context) (*app, error) {
	if cfg.AutoMigrate {
		if err := sqlstore.Migrate(cfg.DBDriver, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	st, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.MaxOpenConns,
		Tx:           cfg.Tx,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	m := metrics.New()
	return &app{store: st, metrics: m, sink: notification.NewSink(log, m)}, nil
}

func (a *app) sweeper() *maintenance.Sweeper {
	return maintenance.NewSweeper(a.store, a.sink, log, maintenance.WithRecorder(a.metrics))
}

func (a *app) Close() error {
	return a.store.Close()
}
