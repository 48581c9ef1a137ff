package store

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration for the database's dialect.
func Migrate(ctx context.Context, db *bun.DB, log *zap.Logger) error {
	gooseDialect, dir := "postgres", "migrations/postgres"
	if db.Dialect().Name() == dialect.SQLite {
		gooseDialect, dir = "sqlite3", "migrations/sqlite"
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log.Sugar()})
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(ctx context.Context, db *bun.DB) (int64, error) {
	gooseDialect := "postgres"
	if db.Dialect().Name() == dialect.SQLite {
		gooseDialect = "sqlite3"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db.DB)
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.s.Infof(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.s.Fatalf(strings.TrimSpace(format), v...)
}
