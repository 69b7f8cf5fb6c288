package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-lifecycle/internal/invocations"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDispatcherRunning is returned by Start when the loop is already active.
	ErrDispatcherRunning = errors.New("jobs: dispatcher already running")
	// ErrDispatcherMisconfigured reports a missing service or firer.
	ErrDispatcherMisconfigured = errors.New("jobs: dispatcher requires an invocation service and firer")
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultWorkers      = 4
)

// DispatchObserver receives per-pass timings.
type DispatchObserver interface {
	ObserveDispatch(d time.Duration)
}

// Summary tallies one dispatcher pass.
type Summary struct {
	Due      int
	Executed int
	Stale    int
	Failed   int
	Retried  int
	Skipped  int
}

// Fired reports how many invocations were claimed during the pass.
func (s Summary) Fired() int {
	return s.Executed + s.Stale + s.Failed + s.Retried
}

func (s *Summary) add(outcome invocations.Outcome) {
	switch outcome {
	case invocations.OutcomeExecuted:
		s.Executed++
	case invocations.OutcomeStale:
		s.Stale++
	case invocations.OutcomeFailed:
		s.Failed++
	case invocations.OutcomeRetry:
		s.Retried++
	default:
		s.Skipped++
	}
}

// Dispatcher polls the schedule table and fires due invocations on a bounded
// worker pool.
type Dispatcher struct {
	service   *invocations.Service
	firer     *invocations.Firer
	audit     AuditRecorder
	observer  DispatchObserver
	logger    interfaces.Logger
	now       func() time.Time
	interval  time.Duration
	batchSize int
	workers   int
	reconcile bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithAuditRecorder records one event per claimed invocation.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(d *Dispatcher) {
		d.audit = recorder
	}
}

// WithDispatchObserver sets the timing observer.
func WithDispatchObserver(observer DispatchObserver) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the audit clock.
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.now = clock
		}
	}
}

// WithPollInterval sets the ticker period used by Start.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithBatchSize caps the number of due invocations fetched per pass.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.batchSize = size
		}
	}
}

// WithWorkers bounds concurrent firings within a pass.
func WithWorkers(workers int) Option {
	return func(d *Dispatcher) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

// WithReconcileOnStart releases invocations left running before the loop starts.
func WithReconcileOnStart(enabled bool) Option {
	return func(d *Dispatcher) {
		d.reconcile = enabled
	}
}

// NewDispatcher wires the dispatcher over the invocation service and firer.
func NewDispatcher(service *invocations.Service, firer *invocations.Firer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		service:   service,
		firer:     firer,
		logger:    logging.NoOp(),
		now:       time.Now,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Process runs one pass over due invocations, including ones whose fire time
// passed while no dispatcher was running. Action and delivery failures are
// settled by the firer and counted in the summary; only storage errors are
// returned.
func (d *Dispatcher) Process(ctx context.Context) (Summary, error) {
	var summary Summary
	if d.service == nil || d.firer == nil {
		return summary, ErrDispatcherMisconfigured
	}
	started := time.Now()
	defer func() {
		if d.observer != nil {
			d.observer.ObserveDispatch(time.Since(started))
		}
	}()

	due, err := d.service.Due(ctx, d.batchSize)
	if err != nil {
		return summary, err
	}

	seen := make(map[string]struct{}, len(due))
	ids := make([]string, 0, len(due))
	for _, job := range due {
		if job == nil {
			continue
		}
		if _, dup := seen[job.ID]; dup {
			continue
		}
		seen[job.ID] = struct{}{}
		ids = append(ids, job.ID)
	}
	summary.Due = len(ids)
	if len(ids) == 0 {
		return summary, nil
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(d.workers)
	for _, id := range ids {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result, err := d.firer.OnFire(ctx, id)
			mu.Lock()
			summary.add(result.Outcome)
			if err != nil && result.Err == nil {
				errs = append(errs, err)
			}
			mu.Unlock()
			d.record(ctx, result)
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Debug("jobs.dispatch.pass",
		"due", summary.Due,
		"executed", summary.Executed,
		"stale", summary.Stale,
		"failed", summary.Failed,
		"retried", summary.Retried,
		"skipped", summary.Skipped,
	)
	return summary, errors.Join(errs...)
}

// Start launches the polling loop. The first pass runs immediately so missed
// invocations catch up without waiting a full interval.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.service == nil || d.firer == nil {
		return ErrDispatcherMisconfigured
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrDispatcherRunning
	}

	if d.reconcile {
		if _, err := d.service.Reconcile(ctx); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(loopCtx, d.done)
	d.logger.Info("jobs.dispatcher.started", "interval", d.interval, "workers", d.workers, "batch_size", d.batchSize)
	return nil
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("jobs.dispatcher.stopped")
}

// Running reports whether the polling loop is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, err := d.Process(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("jobs.dispatch.failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) record(ctx context.Context, result invocations.FireResult) {
	if d.audit == nil || result.Outcome == invocations.OutcomeSkipped {
		return
	}
	event := AuditEvent{
		InvocationID: result.InvocationID,
		HandleID:     result.HandleID,
		Action:       result.Action,
		Outcome:      string(result.Outcome),
		Attempt:      result.Attempt,
		OccurredAt:   d.now().UTC(),
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	if err := d.audit.Record(ctx, event); err != nil {
		d.logger.Warn("jobs.audit.record_failed", "invocation_id", result.InvocationID, "error", err)
	}
}
