package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// FS содержит SQL-миграции goose для обоих диалектов
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

var dirs = map[goose.Dialect]string{
	goose.DialectPostgres: "postgres",
	goose.DialectSQLite3:  "sqlite",
}

// NewProvider создаёт goose-провайдер для встроенных миграций диалекта.
// Provider.Close закрывает db, поэтому для общего соединения его не вызывают.
func NewProvider(dialect goose.Dialect, db *sql.DB) (*goose.Provider, error) {
	dir, ok := dirs[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	sub, err := fs.Sub(FS, dir)
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return provider, nil
}
