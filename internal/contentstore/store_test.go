package contentstore

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

func TestSessionCommitAppliesStagedChanges(t *testing.T) {
	ctx := context.Background()
	store := New()
	unpublished := store.Seed("/docs/a", interfaces.VariantUnpublished, map[string]any{"title": "A"})

	sess, err := store.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	published, err := sess.Copy(ctx, unpublished, interfaces.VariantPublished)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if _, ok := store.Node(published.Path); ok {
		t.Fatal("expected copy to stay staged until commit")
	}
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	node, ok := store.Node(published.Path)
	if !ok {
		t.Fatal("expected committed node")
	}
	if node.Kind != interfaces.VariantPublished || node.Properties["title"] != "A" {
		t.Fatalf("unexpected published node: %+v", node)
	}
	if len(store.Nodes("/docs/a")) != 2 {
		t.Fatalf("expected two nodes, got %d", len(store.Nodes("/docs/a")))
	}
}

func TestSessionRollbackDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	store := New()
	node := store.Seed("/docs/b", interfaces.VariantPublished, nil)

	sess, _ := store.Open(ctx)
	if err := sess.Delete(ctx, node); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := sess.Resolve(ctx, node.Path); !errors.Is(err, interfaces.ErrNodeNotFound) {
		t.Fatalf("expected staged delete to hide node, got %v", err)
	}
	if err := sess.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, ok := store.Node(node.Path); !ok {
		t.Fatal("expected rollback to keep node")
	}
	if _, err := sess.Resolve(ctx, node.Path); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
}

func TestSessionRetagAndCheckin(t *testing.T) {
	ctx := context.Background()
	store := New()
	draft := store.Seed("/docs/c", interfaces.VariantDraft, nil)
	if !draft.CheckedOut {
		t.Fatal("expected seeded draft to be checked out")
	}
	unpublished := store.Seed("/docs/c", interfaces.VariantUnpublished, nil)

	sess, _ := store.Open(ctx)
	if err := sess.Checkin(ctx, draft); err != nil {
		t.Fatalf("checkin: %v", err)
	}
	archived, err := sess.Retag(ctx, unpublished, interfaces.VariantArchived)
	if err != nil {
		t.Fatalf("retag: %v", err)
	}
	if archived.Path != unpublished.Path || archived.Kind != interfaces.VariantArchived {
		t.Fatalf("expected in-place retag, got %+v", archived)
	}
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	checkedIn, _ := store.Node(draft.Path)
	if checkedIn.CheckedOut {
		t.Fatal("expected draft to be checked in")
	}
}

func TestFaultInjectionWrapsRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	store := New(WithFaults(func(op, _ string) error {
		if op == "copy" {
			return boom
		}
		return nil
	}))
	node := store.Seed("/docs/d", interfaces.VariantUnpublished, nil)

	sess, _ := store.Open(ctx)
	_, err := sess.Copy(ctx, node, interfaces.VariantPublished)
	var repoErr *interfaces.RepositoryError
	if !errors.As(err, &repoErr) || repoErr.Op != "copy" || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}

	store.SetFaults(func(op, _ string) error {
		if op == "open" {
			return boom
		}
		return nil
	})
	if _, err := store.Open(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected open fault, got %v", err)
	}
}
