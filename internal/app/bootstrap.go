package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/config"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/repository/sqlite"
	"github.com/Freeeeeet/class_scheduler/internal/service"
)

// Database: хранилище выбранного драйвера и мигратор для него
type Database struct {
	Store    repository.Store
	Migrator *Migrator
	driver   string
}

// OpenDatabase подключается к базе по DB_DRIVER/DB_DSN.
// SQLite мигрируется при открытии, Postgres мигрируют явно через Migrator.Run.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Database, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.DBDSN, logger)
		if err != nil {
			return nil, err
		}
		migrator, err := NewMigrator(store.DB(), goose.DialectSQLite3, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return &Database{Store: store, Migrator: migrator, driver: cfg.DBDriver}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("create pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		// Goose работает с *sql.DB, поэтому создаём его поверх пула
		migrator, err := NewMigrator(stdlib.OpenDBFromPool(pool), goose.DialectPostgres, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &Database{
			Store:    repository.NewPostgresStore(pool, logger),
			Migrator: migrator,
			driver:   cfg.DBDriver,
		}, nil
	}

	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

// Close закрывает мигратор и хранилище
func (d *Database) Close() error {
	// у SQLite мигратор делит соединение с хранилищем
	if d.driver == config.DriverPostgres {
		if err := d.Migrator.Close(); err != nil {
			return fmt.Errorf("close migrator: %w", err)
		}
	}
	return d.Store.Close()
}

// Services: сервисы приложения поверх одного хранилища
type Services struct {
	Series   *service.SeriesService
	Timeline *service.TimelineService
}

func NewServices(store repository.Store, cfg *config.Config, clock service.Clock, logger *zap.Logger) *Services {
	return &Services{
		Series:   service.NewSeriesService(store, clock, logger),
		Timeline: service.NewTimelineService(store, clock, cfg.Lookahead(), logger),
	}
}
