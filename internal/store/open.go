package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/config"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open builds the Repository selected by cfg.Driver. The returned closer
// releases the database handle and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Repository, func() error, error) {
	noop := func() error { return nil }

	var (
		db  *bun.DB
		err error
	)
	switch cfg.Driver {
	case DriverMemory:
		log.Info("using in-memory conversation store")
		return NewMemoryRepository(), noop, nil
	case DriverSQLite:
		db, err = OpenSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		db, err = OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, noop, err
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
	}

	log.Info("conversation store ready", zap.String("driver", cfg.Driver))
	return NewBunRepository(db), db.Close, nil
}

// OpenSQLite opens a single-connection SQLite database. ":memory:" gives a
// private database that lives as long as the handle.
func OpenSQLite(ctx context.Context, path string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := sqldb.ExecContext(ctx, pragma); err != nil {
			_ = sqldb.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenPostgres connects through pgdriver and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}
