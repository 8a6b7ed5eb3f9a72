package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/migrations"
)

// Migrator обёртка над goose
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
	logger   *zap.Logger
}

// NewMigrator создаёт мигратор для встроенных миграций диалекта.
// Для Postgres db получают через stdlib.OpenDBFromPool, для SQLite это соединение хранилища.
func NewMigrator(db *sql.DB, dialect goose.Dialect, logger *zap.Logger) (*Migrator, error) {
	provider, err := migrations.NewProvider(dialect, db)
	if err != nil {
		return nil, err
	}

	return &Migrator{
		db:       db,
		provider: provider,
		logger:   logger,
	}, nil
}

// Run применяет все pending миграции
func (mg *Migrator) Run(ctx context.Context) error {
	mg.logger.Info("Applying database migrations")

	results, err := mg.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		mg.logger.Info("Migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration),
		)
	}

	mg.logger.Info("Migrations applied successfully", zap.Int("applied", len(results)))
	return nil
}

// Version показывает текущую версию миграций
func (mg *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := mg.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Status возвращает состояние каждой миграции
func (mg *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	statuses, err := mg.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("get migration status: %w", err)
	}
	return statuses, nil
}

// Close закрывает соединение мигратора.
// Для Postgres это отдельный *sql.DB поверх пула, сам пул остаётся открытым.
func (mg *Migrator) Close() error {
	if mg.db != nil {
		return mg.db.Close()
	}
	return nil
}
