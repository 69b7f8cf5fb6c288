package lifecycle

import (
	"context"
	"errors"
	"time"

	lifecyclecmd "github.com/goliatone/go-lifecycle/internal/commands/lifecycle"
	"github.com/goliatone/go-lifecycle/internal/di"
	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/jobs"
	"github.com/goliatone/go-lifecycle/internal/workflow"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
)

// Handle exports the document handle aggregate.
type Handle = documents.Handle

// PendingRequest exports the pending request record.
type PendingRequest = documents.PendingRequest

// Result exports the outcome of a lifecycle command.
type Result = workflow.Result

// CreateHandleInput exports the handle registration payload.
type CreateHandleInput = workflow.CreateHandleInput

// RequestInput exports the publish/depublish request payload.
type RequestInput = workflow.RequestInput

// WindowInput exports the publish-and-depublish payload.
type WindowInput = workflow.WindowInput

// PendingQuery exports the ListPending filter.
type PendingQuery = workflow.PendingQuery

// PendingItem exports one ListPending row.
type PendingItem = workflow.PendingItem

// Invocation exports the persisted scheduled invocation.
type Invocation = interfaces.Job

// InvocationFilter exports the ListInvocations filter.
type InvocationFilter = interfaces.JobFilter

// AuditEvent exports the dispatcher audit record.
type AuditEvent = jobs.AuditEvent

// WorkflowState exports the handle state enum.
type WorkflowState = domain.WorkflowState

// Handle states.
const (
	StateIdle            = domain.WorkflowStateIdle
	StateRequestAccepted = domain.WorkflowStateRequestAccepted
	StateDispatching     = domain.WorkflowStateDispatching
	StateFailed          = domain.WorkflowStateFailed
	StateArchived        = domain.WorkflowStateArchived
)

// Sentinel errors reachable through errors.Is.
var (
	ErrConflict                = domain.ErrConflict
	ErrInvalidSchedule         = domain.ErrInvalidSchedule
	ErrNotFound                = domain.ErrNotFound
	ErrActionFailed            = domain.ErrActionFailed
	ErrCollaboratorUnavailable = domain.ErrCollaboratorUnavailable
	ErrTerminalState           = domain.ErrTerminalState
	ErrInvalidTransition       = domain.ErrInvalidTransition
	ErrUnknownAction           = domain.ErrUnknownAction
)

// ErrModuleClosed is returned by Start after Close.
var ErrModuleClosed = errors.New("lifecycle: module closed")

// Module is the top level lifecycle runtime façade.
type Module struct {
	container *di.Container
	closed    bool
}

// New constructs a lifecycle module using the provided configuration and optional DI overrides.
func New(cfg Config, opts ...di.Option) (*Module, error) {
	container, err := di.NewContainer(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Module{container: container}, nil
}

// Container exposes the underlying DI container for advanced integrations.
func (m *Module) Container() *di.Container {
	return m.container
}

// Commands returns the registered command handlers, nil when commands are disabled.
func (m *Module) Commands() *lifecyclecmd.HandlerSet {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Handlers()
}

// CreateHandle registers a document whose variant nodes already exist in the content store.
func (m *Module) CreateHandle(ctx context.Context, input CreateHandleInput) (*Handle, error) {
	return m.container.Interpreter().CreateHandle(ctx, input)
}

// Handle returns the stored handle.
func (m *Module) Handle(ctx context.Context, handleID uuid.UUID) (*Handle, error) {
	return m.container.Interpreter().Get(ctx, handleID)
}

// RequestPublication publishes now, or schedules a publication when input.When is in the future.
func (m *Module) RequestPublication(ctx context.Context, input RequestInput) (Result, error) {
	return m.container.Interpreter().RequestPublication(ctx, input)
}

// RequestDepublication removes the published variant now or at input.When.
func (m *Module) RequestDepublication(ctx context.Context, input RequestInput) (Result, error) {
	return m.container.Interpreter().RequestDepublication(ctx, input)
}

// RequestPublicationWindow publishes at PublishAt and depublishes at DepublishAt.
func (m *Module) RequestPublicationWindow(ctx context.Context, input WindowInput) (Result, error) {
	return m.container.Interpreter().RequestPublicationWindow(ctx, input)
}

// CancelRequest drops the pending request of a handle.
func (m *Module) CancelRequest(ctx context.Context, handleID uuid.UUID) (Result, error) {
	return m.container.Interpreter().CancelRequest(ctx, handleID)
}

// Archive retires every variant of a handle.
func (m *Module) Archive(ctx context.Context, handleID uuid.UUID) (Result, error) {
	return m.container.Interpreter().Archive(ctx, handleID)
}

// Retry re-dispatches the request of a failed handle.
func (m *Module) Retry(ctx context.Context, handleID uuid.UUID) (Result, error) {
	return m.container.Interpreter().Retry(ctx, handleID)
}

// Restore copies a retained node into the unpublished slot.
func (m *Module) Restore(ctx context.Context, handleID uuid.UUID, source string) (Result, error) {
	return m.container.Interpreter().Restore(ctx, handleID, source)
}

// ListPending returns outstanding requests and failed handles.
func (m *Module) ListPending(ctx context.Context, query PendingQuery) ([]PendingItem, error) {
	items, err := m.container.Interpreter().ListPending(ctx, query)
	if err != nil {
		return nil, err
	}
	if query.DueBefore == nil && len(query.States) == 0 && query.Limit == 0 {
		m.container.Metrics().SetPending(len(items))
	}
	return items, nil
}

// ListInvocations returns scheduled invocations matching filter.
func (m *Module) ListInvocations(ctx context.Context, filter InvocationFilter) ([]*Invocation, error) {
	return m.container.Invocations().List(ctx, filter)
}

// Audit returns the recorded dispatcher events, oldest first.
func (m *Module) Audit(ctx context.Context) ([]AuditEvent, error) {
	return m.container.AuditRecorder().List(ctx)
}

// ProcessDue runs one dispatcher pass and returns its summary.
func (m *Module) ProcessDue(ctx context.Context) (jobs.Summary, error) {
	return m.container.Dispatcher().Process(ctx)
}

// Start launches the dispatcher loop when the dispatcher feature is enabled.
func (m *Module) Start(ctx context.Context) error {
	if m.closed {
		return ErrModuleClosed
	}
	if !m.container.Config.Features.Dispatcher {
		return nil
	}
	return m.container.Dispatcher().Start(ctx)
}

// Stop halts the dispatcher loop and waits for the in-flight pass.
func (m *Module) Stop() {
	m.container.Dispatcher().Stop()
}

// Close stops the dispatcher and releases storage connections.
func (m *Module) Close() error {
	if m == nil || m.closed {
		return nil
	}
	m.closed = true
	return m.container.Close()
}

// Now returns the module clock reading, useful when computing schedule times.
func (m *Module) Now() time.Time {
	return m.container.Now()
}
