package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/repository/storetest"
	"github.com/Freeeeeet/class_scheduler/migrations"
)

// Тест выполняется только при заданном TEST_DB_DSN и очищает таблицы перед каждым прогоном
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })

	provider, err := migrations.NewProvider(goose.DialectPostgres, db)
	require.NoError(t, err)
	_, err = provider.Up(ctx)
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) repository.Store {
		_, err := pool.Exec(ctx, `TRUNCATE change_log, overrides, event_series, classes RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return repository.NewPostgresStore(pool, zap.NewNop())
	})
}
