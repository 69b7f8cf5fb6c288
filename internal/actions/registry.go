// Package actions holds the static library of lifecycle actions. Actions mutate
// the handle they are given and the content store session in Env. They never
// touch pending requests or invocations.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// Action names in the default library.
const (
	Publish       = "publish"
	Depublish     = "depublish"
	Archive       = "archive"
	DeleteVariant = "delete-variant"
	CopyVariant   = "copy-variant"
	Restore       = "restore"
	CancelRequest = "cancel-request"
)

// Args carries action parameters.
type Args map[string]any

// String returns args[key] when it is a non-empty string.
func (a Args) String(key string) string {
	if a == nil {
		return ""
	}
	if value, ok := a[key].(string); ok {
		return value
	}
	return ""
}

// Bool returns args[key] when it is a bool.
func (a Args) Bool(key string) bool {
	if a == nil {
		return false
	}
	value, _ := a[key].(bool)
	return value
}

// Env is the execution environment of a single action run.
type Env struct {
	Session       interfaces.Session
	Now           func() time.Time
	Reporter      interfaces.FaultReporter
	Logger        interfaces.Logger
	Collaborators *Collaborators
	Action        string
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e Env) logger() interfaces.Logger {
	if e.Logger == nil {
		return logging.NoOp()
	}
	return e.Logger
}

// Action executes against a working copy of the handle and returns it.
type Action func(ctx context.Context, env Env, handle *documents.Handle, args Args) (*documents.Handle, error)

// Registry maps action names to implementations.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// DefaultRegistry returns the built-in action library.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, action := range map[string]Action{
		Publish:       PublishAction,
		Depublish:     DepublishAction,
		Archive:       ArchiveAction,
		DeleteVariant: DeleteVariantAction,
		CopyVariant:   CopyVariantAction,
		Restore:       RestoreAction,
		CancelRequest: CancelRequestAction,
	} {
		_ = r.Register(name, action)
	}
	return r
}

// Register adds an action. Names are unique.
func (r *Registry) Register(name string, action Action) error {
	if name == "" || action == nil {
		return errors.New("actions: name and action are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("actions: %q already registered", name)
	}
	r.actions[name] = action
	return nil
}

// Resolve returns the action bound to name.
func (r *Registry) Resolve(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAction, name)
	}
	return action, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Validate fails on the first unknown name.
func (r *Registry) Validate(names ...string) error {
	for _, name := range names {
		if _, err := r.Resolve(name); err != nil {
			return err
		}
	}
	return nil
}

// Names lists registered actions in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run resolves and executes name against a clone of handle. Any error comes
// back as *domain.ActionFailure, and the caller's handle is left untouched.
func (r *Registry) Run(ctx context.Context, name string, env Env, handle *documents.Handle, args Args) (*documents.Handle, error) {
	action, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	env.Action = name
	working := handle.Clone()

	result, err := action(ctx, env, working, args)
	if err != nil {
		var failure *domain.ActionFailure
		if errors.As(err, &failure) {
			return nil, failure
		}
		return nil, &domain.ActionFailure{Action: name, HandleID: handle.ID.String(), Err: err}
	}
	if result == nil {
		result = working
	}
	result.LastAction = name
	result.UpdatedAt = env.now()
	if err := result.Validate(); err != nil {
		return nil, &domain.ActionFailure{Action: name, HandleID: handle.ID.String(), Err: err}
	}
	return result, nil
}

func failure(env Env, handle *documents.Handle, format string, args ...any) error {
	return &domain.ActionFailure{Action: env.Action, HandleID: handle.ID.String(), Err: fmt.Errorf(format, args...)}
}
