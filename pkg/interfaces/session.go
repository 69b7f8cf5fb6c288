package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// VariantKind names one lifecycle copy of a document.
type VariantKind string

const (
	VariantDraft       VariantKind = "draft"
	VariantUnpublished VariantKind = "unpublished"
	VariantPublished   VariantKind = "published"
	VariantArchived    VariantKind = "archived"
)

// ErrNodeNotFound reports a path that does not resolve to a variant node.
var ErrNodeNotFound = errors.New("repository: node not found")

// VariantNode is the content store's view of a single variant.
type VariantNode struct {
	Path         string
	DocumentPath string
	Kind         VariantKind
	CheckedOut   bool
	Properties   map[string]any
	UpdatedAt    time.Time
}

// SessionFactory opens repository sessions. Each transition and each fired
// invocation works against its own session.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Session is the unit of work against the content store. Changes become visible
// after Commit; Rollback discards everything staged in the session.
type Session interface {
	Resolve(ctx context.Context, path string) (*VariantNode, error)
	// Copy creates a new node of the given kind from src under the same document.
	Copy(ctx context.Context, src *VariantNode, kind VariantKind) (*VariantNode, error)
	// Retag converts a node in place into another kind (e.g. unpublished to archived).
	Retag(ctx context.Context, node *VariantNode, kind VariantKind) (*VariantNode, error)
	Delete(ctx context.Context, node *VariantNode) error
	Checkout(ctx context.Context, node *VariantNode) error
	Checkin(ctx context.Context, node *VariantNode) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RepositoryError reports I/O or consistency problems raised by the content store.
type RepositoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("repository: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}
