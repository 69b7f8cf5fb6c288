// Package invocations schedules durable future firings of lifecycle actions
// and delivers them back to the interpreter exactly once.
package invocations

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/internal/scheduler"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// ActionCatalog reports which action names may be scheduled.
type ActionCatalog interface {
	Has(name string) bool
}

// Spec describes one invocation to schedule.
type Spec struct {
	Subject       string
	Action        string
	Args          map[string]any
	FireAt        time.Time
	CorrelationID string
	MaxAttempts   int
}

// Service wraps the durable schedule table.
type Service struct {
	store   interfaces.Scheduler
	catalog ActionCatalog
	now     func() time.Time
	logger  interfaces.Logger
}

// ServiceOption customises the service.
type ServiceOption func(*Service)

// WithClock overrides the clock used to validate fire times.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger interfaces.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService builds a service over store. A nil catalog accepts every action name.
func NewService(store interfaces.Scheduler, catalog ActionCatalog, opts ...ServiceOption) *Service {
	svc := &Service{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		logger:  logging.NoOp(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Store exposes the underlying schedule table.
func (s *Service) Store() interfaces.Scheduler { return s.store }

// Validate checks spec the way Schedule does without enqueueing anything.
func (s *Service) Validate(spec Spec) error {
	now := s.now()
	if spec.FireAt.IsZero() {
		return &domain.InvalidScheduleError{Now: now, Reason: "fire time is required"}
	}
	if !spec.FireAt.After(now) {
		return &domain.InvalidScheduleError{FireAt: spec.FireAt, Now: now}
	}
	if spec.Subject == "" {
		return errors.New("invocations: subject is required")
	}
	if s.catalog != nil && !s.catalog.Has(spec.Action) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, spec.Action)
	}
	return nil
}

// Schedule persists an invocation and returns its id.
func (s *Service) Schedule(ctx context.Context, spec Spec) (string, error) {
	if err := s.Validate(spec); err != nil {
		return "", err
	}

	job, err := s.store.Enqueue(ctx, interfaces.JobSpec{
		Key:           scheduler.InvocationKey(spec.Subject, spec.Action, spec.CorrelationID),
		Type:          spec.Action,
		Subject:       spec.Subject,
		CorrelationID: spec.CorrelationID,
		RunAt:         spec.FireAt.UTC(),
		Payload:       maps.Clone(spec.Args),
		MaxAttempts:   spec.MaxAttempts,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrDuplicateJobKey) {
			return "", &domain.ConflictError{HandleID: spec.Subject, Reason: "an invocation for this stage is already scheduled"}
		}
		return "", err
	}

	logging.WithHandleContext(s.logger, spec.Subject, spec.CorrelationID, spec.Action).Debug("invocations.scheduled",
		"invocation_id", job.ID,
		"fire_at", job.RunAt,
	)
	return job.ID, nil
}

// Cancel removes a pending invocation. Fired, running, failed or unknown
// invocations return *domain.NotFoundError.
func (s *Service) Cancel(ctx context.Context, id string) error {
	err := s.store.Cancel(ctx, id)
	switch {
	case err == nil:
		s.logger.Debug("invocations.cancelled", "invocation_id", id)
		return nil
	case errors.Is(err, interfaces.ErrJobNotFound), errors.Is(err, interfaces.ErrJobNotPending):
		return &domain.NotFoundError{Resource: "pending invocation", Key: id}
	default:
		return err
	}
}

// Discard removes an invocation whatever its status. Missing rows are ignored.
func (s *Service) Discard(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, interfaces.ErrJobNotFound) {
		return err
	}
	return nil
}

// Get returns the stored invocation.
func (s *Service) Get(ctx context.Context, id string) (*interfaces.Job, error) {
	job, err := s.store.Get(ctx, id)
	if errors.Is(err, interfaces.ErrJobNotFound) {
		return nil, &domain.NotFoundError{Resource: "invocation", Key: id}
	}
	return job, err
}

// List returns invocations matching filter.
func (s *Service) List(ctx context.Context, filter interfaces.JobFilter) ([]*interfaces.Job, error) {
	return s.store.List(ctx, filter)
}

// Due returns pending invocations whose fire time has passed, including missed ones.
func (s *Service) Due(ctx context.Context, limit int) ([]*interfaces.Job, error) {
	return s.store.ListDue(ctx, s.now(), limit)
}

// Reconcile releases invocations left running by a crashed process.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	released, err := s.store.Reconcile(ctx)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.logger.Info("invocations.reconciled", "released", released)
	}
	return released, nil
}
