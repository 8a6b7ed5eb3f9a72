package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/repository/base"
)

// PostgresStore: хранилище поверх пула pgx
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Repos возвращает репозитории, работающие напрямую с пулом
func (s *PostgresStore) Repos() Repositories {
	return newPgRepositories(s.pool, s.logger)
}

// InTx выполняет fn в транзакции
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newPgRepositories(tx, s.logger)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close закрывает пул
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func newPgRepositories(db base.Querier, logger *zap.Logger) Repositories {
	return Repositories{
		Classes:   NewClassRepository(db),
		Series:    NewSeriesRepository(db, logger),
		Overrides: NewOverrideRepository(db),
		ChangeLog: NewChangeLogRepository(db),
	}
}
