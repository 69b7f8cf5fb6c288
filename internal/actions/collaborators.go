package actions

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// CoreArchiver is the collaborator name archive looks up.
const CoreArchiver = "core"

// Archiver converts an unpublished node into its archived form.
type Archiver interface {
	Archive(ctx context.Context, session interfaces.Session, node *interfaces.VariantNode) (*interfaces.VariantNode, error)
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, session interfaces.Session, node *interfaces.VariantNode) (*interfaces.VariantNode, error)

func (f ArchiverFunc) Archive(ctx context.Context, session interfaces.Session, node *interfaces.VariantNode) (*interfaces.VariantNode, error) {
	return f(ctx, session, node)
}

// Collaborators holds optional auxiliary services by name.
type Collaborators struct {
	mu        sync.RWMutex
	archivers map[string]Archiver
}

// NewCollaborators returns an empty set.
func NewCollaborators() *Collaborators {
	return &Collaborators{archivers: make(map[string]Archiver)}
}

// DefaultCollaborators registers the session-backed core archiver.
func DefaultCollaborators() *Collaborators {
	c := NewCollaborators()
	c.SetArchiver(CoreArchiver, SessionArchiver{})
	return c
}

// SetArchiver binds name. A nil archiver removes the binding.
func (c *Collaborators) SetArchiver(name string, archiver Archiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if archiver == nil {
		delete(c.archivers, name)
		return
	}
	c.archivers[name] = archiver
}

// Archiver looks name up. A missing binding is reported as unavailable.
func (c *Collaborators) Archiver(name string) (Archiver, error) {
	if c == nil {
		return nil, &domain.OptionalCollaboratorMissing{Collaborator: name, Action: Archive}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	archiver, ok := c.archivers[name]
	if !ok {
		return nil, &domain.OptionalCollaboratorMissing{Collaborator: name, Action: Archive}
	}
	return archiver, nil
}

// SessionArchiver retags the node in place. A repository error while looking
// the node up counts as the collaborator being unavailable.
type SessionArchiver struct{}

func (SessionArchiver) Archive(ctx context.Context, session interfaces.Session, node *interfaces.VariantNode) (*interfaces.VariantNode, error) {
	current, err := session.Resolve(ctx, node.Path)
	if err != nil {
		var repoErr *interfaces.RepositoryError
		if errors.As(err, &repoErr) {
			return nil, &domain.OptionalCollaboratorMissing{Collaborator: CoreArchiver, Action: Archive, Err: err}
		}
		return nil, err
	}
	return session.Retag(ctx, current, interfaces.VariantArchived)
}
