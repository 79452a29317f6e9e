package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-smshook/core"
	smshookmigrations "github.com/goliatone/go-smshook/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	database core.DatabaseConfig
}

func (c persistenceConfig) GetDebug() bool {
	return c.database.Debug
}

func (c persistenceConfig) GetDriver() string {
	return c.database.Driver
}

func (c persistenceConfig) GetServer() string {
	return c.database.DSN
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "smshook"
}

// openDatabase connects the configured driver and returns a persistence
// client bound to the matching bun dialect.
func openDatabase(cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database: dsn is required")
	}

	var dialect schema.Dialect
	switch driver {
	case core.DriverSQLite:
		dialect = sqlitedialect.New()
	case core.DriverPostgres, core.DriverPGX:
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if driver == core.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	cfg.Driver = driver
	client, err := persistence.New(persistenceConfig{database: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: new persistence client: %w", err)
	}
	return client, nil
}

// migrate registers the embedded schema for the client's dialect and applies
// pending migrations.
func migrate(ctx context.Context, client *persistence.Client, driver string) error {
	dialect := smshookmigrations.DialectFor(driver)
	_, err := smshookmigrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, smshookmigrations.WithValidationTargets(dialect))
	if err != nil {
		return fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
