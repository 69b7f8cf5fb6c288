// Package storage opens the SQL database behind the lifecycle tables and
// applies the embedded schema migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goliatone/go-lifecycle/internal/runtimeconfig"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed sql/migrations
var migrationsFS embed.FS

const (
	migrationsTable      = "lifecycle_migrations"
	migrationsLocksTable = "lifecycle_migration_locks"
)

var (
	// ErrNotSQL is returned when Open is asked for the memory driver.
	ErrNotSQL = errors.New("storage: memory driver has no database")
	// ErrUnsupportedDialect is returned for dialects without embedded migrations.
	ErrUnsupportedDialect = errors.New("storage: no migrations for dialect")
)

// MigrationsFS exposes the embedded migration files.
func MigrationsFS() fs.FS {
	return migrationsFS
}

// Open connects to the configured SQL database and verifies the connection.
func Open(ctx context.Context, cfg runtimeconfig.StorageConfig) (*bun.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		sqlDB *sql.DB
		err   error
		db    *bun.DB
	)
	switch driver {
	case runtimeconfig.StorageDriverSQLite:
		sqlDB, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("storage: open sqlite: %w", err)
		}
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	case runtimeconfig.StorageDriverPostgres:
		sqlDB, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("storage: open postgres: %w", err)
		}
		db = bun.NewDB(sqlDB, pgdialect.New())
	case runtimeconfig.StorageDriverMemory, "":
		return nil, ErrNotSQL
	default:
		return nil, fmt.Errorf("%w: %q", runtimeconfig.ErrStorageDriverUnknown, cfg.Driver)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping %s: %w", driver, err)
	}
	return db, nil
}

func migrationsFor(db *bun.DB) (*migrate.Migrations, error) {
	var dir string
	switch db.Dialect().Name() {
	case dialect.SQLite:
		dir = "sqlite"
	case dialect.PG:
		dir = "postgres"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, db.Dialect().Name())
	}
	sub, err := fs.Sub(migrationsFS, "sql/migrations/"+dir)
	if err != nil {
		return nil, err
	}
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return nil, fmt.Errorf("storage: discover migrations: %w", err)
	}
	return migrations, nil
}

func migrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	migrations, err := migrationsFor(db)
	if err != nil {
		return nil, err
	}
	m := migrate.NewMigrator(db, migrations,
		migrate.WithTableName(migrationsTable),
		migrate.WithLocksTableName(migrationsLocksTable),
	)
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("storage: init migrations: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration and returns the names applied.
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	m, err := migrator(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("storage: lock migrations: %w", err)
	}
	defer m.Unlock(ctx) //nolint:errcheck

	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return groupNames(group), nil
}

// Rollback reverts the last applied migration group.
func Rollback(ctx context.Context, db *bun.DB) ([]string, error) {
	m, err := migrator(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("storage: lock migrations: %w", err)
	}
	defer m.Unlock(ctx) //nolint:errcheck

	group, err := m.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: rollback: %w", err)
	}
	return groupNames(group), nil
}

func groupNames(group *migrate.MigrationGroup) []string {
	if group == nil || group.IsZero() {
		return nil
	}
	names := make([]string, 0, len(group.Migrations))
	for _, migration := range group.Migrations {
		names = append(names, migration.Name)
	}
	return names
}
