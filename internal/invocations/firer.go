package invocations

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// Fire is delivered to the target when an invocation is claimed.
type Fire struct {
	InvocationID  string
	HandleID      string
	CorrelationID string
	Action        string
	Args          map[string]any
	Attempt       int
	MaxAttempts   int
	RunAt         time.Time
}

// Final reports whether a delivery error on this fire exhausts the invocation.
func (f Fire) Final() bool {
	return f.MaxAttempts > 0 && f.Attempt >= f.MaxAttempts
}

// Outcome reports what the target did with a fire.
type Outcome string

const (
	// OutcomeExecuted means the action ran.
	OutcomeExecuted Outcome = "executed"
	// OutcomeStale means the request was gone or superseded and nothing ran.
	OutcomeStale Outcome = "stale"
	// OutcomeFailed means the action ran and raised an ActionFailure.
	OutcomeFailed Outcome = "failed"
	// OutcomeRetry means delivery failed and the invocation was released.
	OutcomeRetry Outcome = "retry"
	// OutcomeSkipped means the invocation was missing or another worker claimed it.
	OutcomeSkipped Outcome = "skipped"
)

// Target receives claimed invocations.
type Target interface {
	Trigger(ctx context.Context, fire Fire) (Outcome, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, fire Fire) (Outcome, error)

func (f TargetFunc) Trigger(ctx context.Context, fire Fire) (Outcome, error) { return f(ctx, fire) }

// OutcomeObserver is notified of every OnFire result.
type OutcomeObserver interface {
	InvocationOutcome(outcome string)
}

// FireResult is the audit record of one OnFire call.
type FireResult struct {
	InvocationID string
	HandleID     string
	Action       string
	Attempt      int
	Outcome      Outcome
	Err          error
}

// Firer claims due invocations and hands them to the target.
type Firer struct {
	store    interfaces.Scheduler
	target   Target
	counter  *FireCounter
	observer OutcomeObserver
	logger   interfaces.Logger
}

// FirerOption customises a Firer.
type FirerOption func(*Firer)

// WithCounter sets the fire counter.
func WithCounter(counter *FireCounter) FirerOption {
	return func(f *Firer) {
		if counter != nil {
			f.counter = counter
		}
	}
}

// WithObserver sets the outcome observer.
func WithObserver(observer OutcomeObserver) FirerOption {
	return func(f *Firer) { f.observer = observer }
}

// WithFirerLogger sets the logger.
func WithFirerLogger(logger interfaces.Logger) FirerOption {
	return func(f *Firer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFirer builds a firer over the schedule table.
func NewFirer(store interfaces.Scheduler, target Target, opts ...FirerOption) *Firer {
	f := &Firer{
		store:   store,
		target:  target,
		counter: NewFireCounter(nil),
		logger:  logging.NoOp(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Counter returns the fire counter.
func (f *Firer) Counter() *FireCounter { return f.counter }

// OnFire claims invocation id and delivers it. Missing or already claimed
// invocations are a no-op. The error is the delivery or action error, if any.
func (f *Firer) OnFire(ctx context.Context, id string) (FireResult, error) {
	result := FireResult{InvocationID: id, Outcome: OutcomeSkipped}

	job, err := f.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			f.observe(result)
			return result, nil
		}
		return result, err
	}
	result.HandleID = job.Subject
	result.Action = job.Type
	result.Attempt = job.Attempt + 1

	claimed, err := f.store.Claim(ctx, id)
	if err != nil {
		return result, err
	}
	if !claimed {
		f.observe(result)
		return result, nil
	}
	f.counter.record(id)

	ctx = logging.ContextWithInvocation(ctx, job.Subject, job.CorrelationID, job.ID)
	logger := logging.WithHandleContext(f.logger, job.Subject, job.CorrelationID, job.Type)
	fire := Fire{
		InvocationID:  job.ID,
		HandleID:      job.Subject,
		CorrelationID: job.CorrelationID,
		Action:        job.Type,
		Args:          maps.Clone(job.Payload),
		Attempt:       result.Attempt,
		MaxAttempts:   job.MaxAttempts,
		RunAt:         job.RunAt,
	}
	outcome, triggerErr := f.target.Trigger(ctx, fire)

	switch {
	case triggerErr == nil:
		if outcome == "" {
			outcome = OutcomeExecuted
		}
		result.Outcome = outcome
		if err := f.store.Complete(ctx, id); err != nil && !errors.Is(err, interfaces.ErrJobNotFound) {
			logger.Error("invocations.complete.failed", "invocation_id", id, "error", err)
			f.observe(result)
			return result, err
		}
		logger.Debug("invocations.fired", "invocation_id", id, "outcome", outcome)
	case errors.Is(triggerErr, domain.ErrActionFailed):
		result.Outcome = OutcomeFailed
		result.Err = triggerErr
		if err := f.store.MarkFailed(ctx, id, triggerErr, false); err != nil && !errors.Is(err, interfaces.ErrJobNotFound) {
			logger.Error("invocations.mark_failed.failed", "invocation_id", id, "error", err)
		}
		logger.Warn("invocations.action_failed", "invocation_id", id, "error", triggerErr)
	default:
		result.Outcome = OutcomeRetry
		result.Err = triggerErr
		if err := f.store.MarkFailed(ctx, id, triggerErr, true); err != nil && !errors.Is(err, interfaces.ErrJobNotFound) {
			logger.Error("invocations.mark_failed.failed", "invocation_id", id, "error", err)
		}
		if fire.Final() {
			logger.Error("invocations.attempts_exhausted", "invocation_id", id, "attempt", result.Attempt, "error", triggerErr)
		} else {
			logger.Warn("invocations.delivery_failed", "invocation_id", id, "attempt", result.Attempt, "error", triggerErr)
		}
	}

	f.observe(result)
	return result, result.Err
}

func (f *Firer) observe(result FireResult) {
	if f.observer != nil {
		f.observer.InvocationOutcome(string(result.Outcome))
	}
}
