// Package workflow sequences lifecycle transitions for document handles. The
// Interpreter is the only writer of handles and pending requests: every
// command and every fired invocation runs under the handle's lock against a
// fresh state machine seeded with the persisted state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goliatone/go-lifecycle/internal/actions"
	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/invocations"
	"github.com/goliatone/go-lifecycle/internal/locks"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/internal/reporting"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
)

// InvocationScheduler is the slice of the invocation subsystem the
// interpreter drives.
type InvocationScheduler interface {
	Validate(spec invocations.Spec) error
	Schedule(ctx context.Context, spec invocations.Spec) (string, error)
	Cancel(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
}

// ActionObserver is notified of every action run.
type ActionObserver interface {
	ActionOutcome(action string, success bool)
}

// Observer receives transitions and action outcomes.
type Observer interface {
	TransitionObserver
	ActionObserver
}

// Result describes the handle after a command or trigger.
type Result struct {
	Handle       *documents.Handle
	State        domain.WorkflowState
	InvocationID string
	Purged       bool
}

// Interpreter runs lifecycle commands and scheduled triggers.
type Interpreter struct {
	chart          *Chart
	definition     *interfaces.WorkflowDefinition
	handles        documents.HandleRepository
	requests       documents.PendingRequestRepository
	sessions       interfaces.SessionFactory
	invocations    InvocationScheduler
	registry       *actions.Registry
	collaborators  *actions.Collaborators
	locker         locks.Locker
	reporter       interfaces.FaultReporter
	observer       Observer
	logger         interfaces.Logger
	now            func() time.Time
	id             func() uuid.UUID
	sessionBackOff func() backoff.BackOff
	maxAttempts    int
}

// Option customises the interpreter.
type Option func(*Interpreter)

// WithDefinition replaces the built-in chart.
func WithDefinition(definition interfaces.WorkflowDefinition) Option {
	return func(i *Interpreter) {
		i.definition = &definition
	}
}

// WithRegistry sets the action registry.
func WithRegistry(registry *actions.Registry) Option {
	return func(i *Interpreter) {
		if registry != nil {
			i.registry = registry
		}
	}
}

// WithCollaborators sets the optional action collaborators.
func WithCollaborators(collaborators *actions.Collaborators) Option {
	return func(i *Interpreter) {
		if collaborators != nil {
			i.collaborators = collaborators
		}
	}
}

// WithLocker sets the per-handle locker.
func WithLocker(locker locks.Locker) Option {
	return func(i *Interpreter) {
		if locker != nil {
			i.locker = locker
		}
	}
}

// WithReporter sets the fault reporter.
func WithReporter(reporter interfaces.FaultReporter) Option {
	return func(i *Interpreter) {
		if reporter != nil {
			i.reporter = reporter
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(observer Observer) Option {
	return func(i *Interpreter) {
		i.observer = observer
	}
}

// WithLogger sets the interpreter logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithClock overrides the clock, used mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(i *Interpreter) {
		if clock != nil {
			i.now = clock
		}
	}
}

// WithIDGenerator overrides handle, request and correlation ids.
func WithIDGenerator(generator func() uuid.UUID) Option {
	return func(i *Interpreter) {
		if generator != nil {
			i.id = generator
		}
	}
}

// WithSessionBackOff sets the retry policy for opening repository sessions.
func WithSessionBackOff(factory func() backoff.BackOff) Option {
	return func(i *Interpreter) {
		if factory != nil {
			i.sessionBackOff = factory
		}
	}
}

// WithMaxAttempts sets the delivery attempts of scheduled invocations.
func WithMaxAttempts(attempts int) Option {
	return func(i *Interpreter) {
		if attempts > 0 {
			i.maxAttempts = attempts
		}
	}
}

// NewInterpreter wires an interpreter. The chart is compiled and validated
// eagerly and must bind to registered actions.
func NewInterpreter(handles documents.HandleRepository, requests documents.PendingRequestRepository, sessions interfaces.SessionFactory, scheduler InvocationScheduler, opts ...Option) (*Interpreter, error) {
	if handles == nil || requests == nil {
		return nil, errors.New("workflow: handle and request repositories are required")
	}
	if sessions == nil {
		return nil, errors.New("workflow: session factory is required")
	}
	if scheduler == nil {
		return nil, errors.New("workflow: invocation scheduler is required")
	}

	i := &Interpreter{
		handles:       handles,
		requests:      requests,
		sessions:      sessions,
		invocations:   scheduler,
		registry:      actions.DefaultRegistry(),
		collaborators: actions.DefaultCollaborators(),
		locker:        locks.NewMemoryLocker(),
		logger:        logging.NoOp(),
		now:           time.Now,
		id:            uuid.New,
		sessionBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = time.Second
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if i.reporter == nil {
		i.reporter = reporting.NewLoggerReporter(i.logger)
	}

	definition := DefaultDefinition()
	if i.definition != nil {
		definition = *i.definition
	}
	var transitions TransitionObserver
	if i.observer != nil {
		transitions = i.observer
	}
	chart, err := NewChart(definition, i.logger, transitions)
	if err != nil {
		return nil, err
	}
	i.chart = chart

	if err := i.registry.Validate(
		actions.Publish,
		actions.Depublish,
		actions.Archive,
		actions.Restore,
		actions.CancelRequest,
	); err != nil {
		return nil, fmt.Errorf("workflow: action bindings: %w", err)
	}
	return i, nil
}

// Chart returns the compiled state chart.
func (i *Interpreter) Chart() *Chart { return i.chart }

func (i *Interpreter) lock(ctx context.Context, handleID uuid.UUID) (locks.Unlock, error) {
	return i.locker.Lock(ctx, "handle:"+handleID.String())
}

func (i *Interpreter) loadActive(ctx context.Context, handleID uuid.UUID) (*documents.Handle, error) {
	handle, err := i.handles.GetByID(ctx, handleID)
	if err != nil {
		return nil, err
	}
	if handle.Archived || i.chart.Terminal(handle.State) {
		return nil, &domain.TerminalStateError{HandleID: handleID.String(), State: handle.State}
	}
	return handle, nil
}

func (i *Interpreter) pendingFor(ctx context.Context, handleID uuid.UUID) (*documents.PendingRequest, error) {
	request, err := i.requests.GetByHandle(ctx, handleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return request, nil
}

func (i *Interpreter) openSession(ctx context.Context) (interfaces.Session, error) {
	var session interfaces.Session
	operation := func() error {
		opened, err := i.sessions.Open(ctx)
		if err != nil {
			var repoErr *interfaces.RepositoryError
			if errors.As(err, &repoErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		session = opened
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(i.sessionBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("workflow: open session: %w", err)
	}
	return session, nil
}

func (i *Interpreter) env(session interfaces.Session, logger interfaces.Logger) actions.Env {
	return actions.Env{
		Session:       session,
		Now:           i.now,
		Reporter:      i.reporter,
		Logger:        logger,
		Collaborators: i.collaborators,
	}
}

func (i *Interpreter) save(ctx context.Context, handle *documents.Handle, state domain.WorkflowState) (*documents.Handle, error) {
	handle.State = state
	handle.UpdatedAt = i.now()
	return i.handles.Update(ctx, handle)
}

func (i *Interpreter) handleLogger(handle *documents.Handle, correlationID, action string) interfaces.Logger {
	return logging.WithHandleContext(i.logger, handle.ID.String(), correlationID, action)
}

func (i *Interpreter) observeAction(action string, success bool) {
	if i.observer != nil {
		i.observer.ActionOutcome(action, success)
	}
}

func resultFor(handle *documents.Handle) Result {
	if handle == nil {
		return Result{}
	}
	return Result{Handle: handle, State: handle.State}
}
