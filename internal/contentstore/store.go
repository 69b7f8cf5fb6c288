package contentstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// ErrSessionClosed reports use of a session after Commit or Rollback.
var ErrSessionClosed = errors.New("contentstore: session closed")

// FaultFunc lets tests inject repository errors. It is called with the
// operation name (open, resolve, copy, retag, delete, checkout, checkin,
// commit) and the node path, if any.
type FaultFunc func(op, path string) error

// Store is an in-memory content repository. Nodes are keyed by path.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*interfaces.VariantNode
	seq   map[string]int
	clock func() time.Time
	fault FaultFunc
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFaults installs a fault injector.
func WithFaults(fn FaultFunc) Option {
	return func(s *Store) {
		s.fault = fn
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes: make(map[string]*interfaces.VariantNode),
		seq:   make(map[string]int),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ interfaces.SessionFactory = (*Store)(nil)

// SetFaults swaps the fault injector at runtime.
func (s *Store) SetFaults(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Seed writes a committed node directly, bypassing sessions.
func (s *Store) Seed(documentPath string, kind interfaces.VariantKind, properties map[string]any) *interfaces.VariantNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := &interfaces.VariantNode{
		Path:         s.nextPathLocked(documentPath, kind),
		DocumentPath: documentPath,
		Kind:         kind,
		CheckedOut:   kind == interfaces.VariantDraft,
		Properties:   maps.Clone(properties),
		UpdatedAt:    s.clock(),
	}
	s.nodes[node.Path] = node
	return cloneNode(node)
}

// Node returns the committed node at path.
func (s *Store) Node(path string) (*interfaces.VariantNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[path]
	return cloneNode(node), ok
}

// Nodes lists committed nodes of a document ordered by path.
func (s *Store) Nodes(documentPath string) []*interfaces.VariantNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*interfaces.VariantNode, 0)
	for _, node := range s.nodes {
		if node.DocumentPath == documentPath {
			out = append(out, cloneNode(node))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Open satisfies interfaces.SessionFactory.
func (s *Store) Open(context.Context) (interfaces.Session, error) {
	if err := s.inject("open", ""); err != nil {
		return nil, err
	}
	return &session{store: s, staged: make(map[string]*interfaces.VariantNode)}, nil
}

func (s *Store) inject(op, path string) error {
	s.mu.RLock()
	fault := s.fault
	s.mu.RUnlock()
	if fault == nil {
		return nil
	}
	if err := fault(op, path); err != nil {
		var repoErr *interfaces.RepositoryError
		if errors.As(err, &repoErr) {
			return err
		}
		return &interfaces.RepositoryError{Op: op, Path: path, Err: err}
	}
	return nil
}

func (s *Store) nextPathLocked(documentPath string, kind interfaces.VariantKind) string {
	key := documentPath + "|" + string(kind)
	s.seq[key]++
	return fmt.Sprintf("%s/%s.%d", strings.TrimRight(documentPath, "/"), kind, s.seq[key])
}

type session struct {
	store  *Store
	mu     sync.Mutex
	staged map[string]*interfaces.VariantNode
	closed bool
}

func (s *session) Resolve(_ context.Context, path string) (*interfaces.VariantNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := s.store.inject("resolve", path); err != nil {
		return nil, err
	}
	node, err := s.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	return cloneNode(node), nil
}

func (s *session) Copy(_ context.Context, src *interfaces.VariantNode, kind interfaces.VariantKind) (*interfaces.VariantNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if src == nil {
		return nil, &interfaces.RepositoryError{Op: "copy", Err: interfaces.ErrNodeNotFound}
	}
	if err := s.store.inject("copy", src.Path); err != nil {
		return nil, err
	}
	current, err := s.lookupLocked(src.Path)
	if err != nil {
		return nil, err
	}

	s.store.mu.Lock()
	path := s.store.nextPathLocked(current.DocumentPath, kind)
	now := s.store.clock()
	s.store.mu.Unlock()

	node := &interfaces.VariantNode{
		Path:         path,
		DocumentPath: current.DocumentPath,
		Kind:         kind,
		CheckedOut:   kind == interfaces.VariantDraft,
		Properties:   maps.Clone(current.Properties),
		UpdatedAt:    now,
	}
	s.staged[path] = node
	return cloneNode(node), nil
}

func (s *session) Retag(_ context.Context, node *interfaces.VariantNode, kind interfaces.VariantKind) (*interfaces.VariantNode, error) {
	return s.mutate("retag", node, func(n *interfaces.VariantNode) {
		n.Kind = kind
		n.CheckedOut = false
	})
}

func (s *session) Delete(_ context.Context, node *interfaces.VariantNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if node == nil {
		return &interfaces.RepositoryError{Op: "delete", Err: interfaces.ErrNodeNotFound}
	}
	if err := s.store.inject("delete", node.Path); err != nil {
		return err
	}
	if _, err := s.lookupLocked(node.Path); err != nil {
		return err
	}
	s.staged[node.Path] = nil
	return nil
}

func (s *session) Checkout(_ context.Context, node *interfaces.VariantNode) error {
	_, err := s.mutate("checkout", node, func(n *interfaces.VariantNode) { n.CheckedOut = true })
	return err
}

func (s *session) Checkin(_ context.Context, node *interfaces.VariantNode) error {
	_, err := s.mutate("checkin", node, func(n *interfaces.VariantNode) { n.CheckedOut = false })
	return err
}

func (s *session) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.store.inject("commit", ""); err != nil {
		return err
	}

	s.store.mu.Lock()
	for path, node := range s.staged {
		if node == nil {
			delete(s.store.nodes, path)
			continue
		}
		s.store.nodes[path] = node
	}
	s.store.mu.Unlock()

	s.staged = nil
	s.closed = true
	return nil
}

func (s *session) Rollback(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.staged = nil
	s.closed = true
	return nil
}

func (s *session) mutate(op string, node *interfaces.VariantNode, apply func(*interfaces.VariantNode)) (*interfaces.VariantNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if node == nil {
		return nil, &interfaces.RepositoryError{Op: op, Err: interfaces.ErrNodeNotFound}
	}
	if err := s.store.inject(op, node.Path); err != nil {
		return nil, err
	}
	current, err := s.lookupLocked(node.Path)
	if err != nil {
		return nil, err
	}
	updated := cloneNode(current)
	apply(updated)
	updated.UpdatedAt = s.store.clock()
	s.staged[updated.Path] = updated
	return cloneNode(updated), nil
}

func (s *session) lookupLocked(path string) (*interfaces.VariantNode, error) {
	if node, ok := s.staged[path]; ok {
		if node == nil {
			return nil, &interfaces.RepositoryError{Op: "resolve", Path: path, Err: interfaces.ErrNodeNotFound}
		}
		return node, nil
	}
	s.store.mu.RLock()
	node, ok := s.store.nodes[path]
	s.store.mu.RUnlock()
	if !ok {
		return nil, &interfaces.RepositoryError{Op: "resolve", Path: path, Err: interfaces.ErrNodeNotFound}
	}
	return node, nil
}

func cloneNode(src *interfaces.VariantNode) *interfaces.VariantNode {
	if src == nil {
		return nil
	}
	cloned := *src
	cloned.Properties = maps.Clone(src.Properties)
	return &cloned
}
