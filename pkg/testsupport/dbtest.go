package testsupport

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// NewIsolatedSQLiteDB opens a named in-memory database so parallel tests do
// not share tables.
func NewIsolatedSQLiteDB() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:lifecycle-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewBunSQLiteDB returns a bun handle over an isolated in-memory database with
// a table created for each model.
func NewBunSQLiteDB(ctx context.Context, models ...any) (*bun.DB, error) {
	sqlDB, err := NewIsolatedSQLiteDB()
	if err != nil {
		return nil, err
	}
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return db, nil
}
