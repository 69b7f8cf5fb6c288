package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/runtimeconfig"
	"github.com/goliatone/go-lifecycle/internal/scheduler"
	"github.com/goliatone/go-lifecycle/internal/storage"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func openSQLite(t *testing.T) *bun.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), runtimeconfig.StorageConfig{
		Driver:       runtimeconfig.StorageDriverSQLite,
		DSN:          "file:storage-" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateCreatesLifecycleTables(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	applied, err := storage.Migrate(ctx, db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected one migration applied, got %v", applied)
	}
	again, err := storage.Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected migrations to be idempotent, got %v", again)
	}

	handles := documents.NewBunHandleRepository(db)
	handle := &documents.Handle{ID: uuid.New(), Path: "/docs/migrated", State: domain.WorkflowStateIdle}
	if err := handle.SetVariant(domain.VariantUnpublished, "/docs/migrated/unpublished"); err != nil {
		t.Fatalf("set variant: %v", err)
	}
	if _, err := handles.Create(ctx, handle); err != nil {
		t.Fatalf("create handle: %v", err)
	}
	stored, err := handles.GetByID(ctx, handle.ID)
	if err != nil {
		t.Fatalf("get handle: %v", err)
	}
	if stored.Unpublished == nil || stored.Unpublished.Path != "/docs/migrated/unpublished" {
		t.Fatalf("unexpected stored handle %+v", stored)
	}

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := scheduler.NewBun(db, scheduler.WithClock(func() time.Time { return clock }))
	job, err := store.Enqueue(ctx, interfaces.JobSpec{
		Key:     scheduler.InvocationKey(handle.ID.String(), "publish", "corr"),
		Type:    "publish",
		Subject: handle.ID.String(),
		RunAt:   clock.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	due, err := store.ListDue(ctx, clock.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != job.ID {
		t.Fatalf("expected enqueued invocation to be due, got %+v", due)
	}
}

func TestRollbackDropsTables(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	if _, err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reverted, err := storage.Rollback(ctx, db)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if len(reverted) != 1 {
		t.Fatalf("expected one migration reverted, got %v", reverted)
	}
	if _, err := db.NewSelect().Table("document_handles").Count(ctx); err == nil {
		t.Fatalf("expected document_handles to be dropped")
	}
}

func TestOpenRejectsNonSQLDrivers(t *testing.T) {
	ctx := context.Background()
	if _, err := storage.Open(ctx, runtimeconfig.StorageConfig{Driver: "memory"}); !errors.Is(err, storage.ErrNotSQL) {
		t.Fatalf("expected ErrNotSQL, got %v", err)
	}
	if _, err := storage.Open(ctx, runtimeconfig.StorageConfig{Driver: "oracle", DSN: "x"}); !errors.Is(err, runtimeconfig.ErrStorageDriverUnknown) {
		t.Fatalf("expected ErrStorageDriverUnknown, got %v", err)
	}
}

func TestMigrationsFSContainsBothDialects(t *testing.T) {
	for _, path := range []string{
		"sql/migrations/sqlite/20250301000000_lifecycle.up.sql",
		"sql/migrations/postgres/20250301000000_lifecycle.up.sql",
	} {
		if _, err := storage.MigrationsFS().Open(path); err != nil {
			t.Fatalf("expected %s to be embedded: %v", path, err)
		}
	}
}
