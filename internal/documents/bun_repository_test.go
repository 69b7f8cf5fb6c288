package documents_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/pkg/testsupport"
	"github.com/google/uuid"
)

func TestBunRepositoriesPersistHandlesAndRequests(t *testing.T) {
	ctx := context.Background()
	db, err := testsupport.NewBunSQLiteDB(ctx, (*documents.Handle)(nil), (*documents.PendingRequest)(nil))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	handles := documents.NewBunHandleRepository(db)
	requests := documents.NewBunPendingRequestRepository(db)

	handle := newHandle("/content/bun")
	handle.CreatedAt = time.Now().UTC()
	handle.UpdatedAt = handle.CreatedAt
	if _, err := handles.Create(ctx, handle); err != nil {
		t.Fatalf("create handle: %v", err)
	}

	loaded, err := handles.GetByPath(ctx, "/content/bun")
	if err != nil {
		t.Fatalf("get by path: %v", err)
	}
	if loaded.Unpublished == nil || loaded.Unpublished.Path != "/content/bun/unpublished" {
		t.Fatalf("expected unpublished ref round trip, got %+v", loaded.Unpublished)
	}

	loaded.State = domain.WorkflowStateRequestAccepted
	loaded.Published = &documents.VariantRef{Kind: domain.VariantPublished, Path: "/content/bun/published"}
	if _, err := handles.Update(ctx, loaded); err != nil {
		t.Fatalf("update handle: %v", err)
	}
	reloaded, _ := handles.GetByID(ctx, handle.ID)
	if reloaded.State != domain.WorkflowStateRequestAccepted || reloaded.Published == nil {
		t.Fatalf("expected update to persist, got %+v", reloaded)
	}

	fireAt := time.Now().Add(time.Hour).UTC()
	request := &documents.PendingRequest{
		ID:            uuid.New(),
		HandleID:      handle.ID,
		Kind:          domain.RequestPublish,
		Stage:         domain.StagePublish,
		PublishAt:     &fireAt,
		FireAt:        &fireAt,
		CorrelationID: "corr-1",
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if _, err := requests.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	duplicate := *request
	duplicate.ID = uuid.New()
	duplicate.Kind = domain.RequestDepublish
	if _, err := requests.Create(ctx, &duplicate); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	now := time.Now().UTC()
	due, err := requests.List(ctx, documents.PendingFilter{DueBefore: &now})
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due requests, got %d", len(due))
	}

	stored, err := requests.GetByHandle(ctx, handle.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	stored.InvocationID = "inv-1"
	if _, err := requests.Update(ctx, stored); err != nil {
		t.Fatalf("update request: %v", err)
	}

	if err := requests.DeleteByHandle(ctx, handle.ID); err != nil {
		t.Fatalf("delete request: %v", err)
	}
	if _, err := requests.GetByHandle(ctx, handle.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := handles.Delete(ctx, handle.ID); err != nil {
		t.Fatalf("delete handle: %v", err)
	}
	if _, err := handles.GetByID(ctx, handle.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected handle not found, got %v", err)
	}
}
