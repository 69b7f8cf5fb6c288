package invocations_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/invocations"
	"github.com/goliatone/go-lifecycle/internal/scheduler"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type catalog map[string]bool

func (c catalog) Has(name string) bool { return c[name] }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T) (*invocations.Service, interfaces.Scheduler, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := scheduler.NewInMemory(scheduler.WithClock(clk.Now))
	svc := invocations.NewService(store, catalog{"publish": true, "depublish": true}, invocations.WithClock(clk.Now))
	return svc, store, clk
}

func TestScheduleRejectsNonFutureTimes(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	for _, at := range []time.Time{clk.Now(), clk.Now().Add(-time.Minute), {}} {
		_, err := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", FireAt: at})
		var invalid *domain.InvalidScheduleError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidScheduleError for %v, got %v", at, err)
		}
	}
}

func TestScheduleRejectsUnknownAction(t *testing.T) {
	svc, _, clk := newService(t)
	_, err := svc.Schedule(context.Background(), invocations.Spec{Subject: "h1", Action: "shred", FireAt: clk.Now().Add(time.Hour)})
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestScheduleDuplicateStageConflicts(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	spec := invocations.Spec{Subject: "h1", Action: "publish", CorrelationID: "c1", FireAt: clk.Now().Add(time.Hour)}
	if _, err := svc.Schedule(ctx, spec); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := svc.Schedule(ctx, spec); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCancelBeforeFirePreventsExecution(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	id, err := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(time.Minute)})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := svc.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var calls atomic.Int32
	firer := invocations.NewFirer(store, invocations.TargetFunc(func(context.Context, invocations.Fire) (invocations.Outcome, error) {
		calls.Add(1)
		return invocations.OutcomeExecuted, nil
	}))
	clk.Advance(time.Hour)
	result, err := firer.OnFire(ctx, id)
	if err != nil {
		t.Fatalf("on fire: %v", err)
	}
	if result.Outcome != invocations.OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", result.Outcome)
	}
	if calls.Load() != 0 || firer.Counter().Fired() != 0 {
		t.Fatalf("expected no execution, calls=%d fired=%d", calls.Load(), firer.Counter().Fired())
	}
	if err := svc.Cancel(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected second cancel to report not found, got %v", err)
	}
}

func TestOnFireRunsExactlyOnceUnderContention(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	id, err := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", CorrelationID: "c1", FireAt: clk.Now().Add(time.Minute), Args: map[string]any{"keep_previous": true}})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	clk.Advance(2 * time.Minute)

	metric := prometheus.NewCounter(prometheus.CounterOpts{Name: "fired_total", Help: "test"})
	counter := invocations.NewFireCounter(metric)
	var calls atomic.Int32
	var seen invocations.Fire
	firer := invocations.NewFirer(store, invocations.TargetFunc(func(_ context.Context, fire invocations.Fire) (invocations.Outcome, error) {
		calls.Add(1)
		seen = fire
		return invocations.OutcomeExecuted, nil
	}), invocations.WithCounter(counter))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := firer.OnFire(ctx, id); err != nil {
				t.Errorf("on fire: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one delivery, got %d", calls.Load())
	}
	if counter.Fired() != 1 || counter.FiredFor(id) != 1 {
		t.Fatalf("expected counter 1, got %d/%d", counter.Fired(), counter.FiredFor(id))
	}
	if got := testutil.ToFloat64(metric); got != 1 {
		t.Fatalf("expected prometheus counter 1, got %v", got)
	}
	if seen.HandleID != "h1" || seen.CorrelationID != "c1" || seen.Action != "publish" || seen.Args["keep_previous"] != true {
		t.Fatalf("unexpected fire payload: %+v", seen)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, interfaces.ErrJobNotFound) {
		t.Fatalf("expected fired invocation to be consumed, got %v", err)
	}
	if err := svc.Cancel(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected cancel after fire to fail, got %v", err)
	}
}

func TestOnFireActionFailureKeepsInvocation(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	id, _ := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(time.Minute)})
	clk.Advance(time.Hour)

	firer := invocations.NewFirer(store, invocations.TargetFunc(func(context.Context, invocations.Fire) (invocations.Outcome, error) {
		return "", &domain.ActionFailure{Action: "publish", HandleID: "h1", Err: errors.New("boom")}
	}))
	result, err := firer.OnFire(ctx, id)
	if !errors.Is(err, domain.ErrActionFailed) {
		t.Fatalf("expected action failure, got %v", err)
	}
	if result.Outcome != invocations.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", result.Outcome)
	}
	job, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != interfaces.JobStatusFailed || job.LastError == "" {
		t.Fatalf("expected failed job with error, got %+v", job)
	}
	if err := svc.Discard(ctx, id); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if err := svc.Discard(ctx, id); err != nil {
		t.Fatalf("discard missing: %v", err)
	}
}

func TestOnFireDeliveryErrorReleasesInvocation(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	id, _ := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(time.Minute), MaxAttempts: 2})
	clk.Advance(time.Hour)

	var calls atomic.Int32
	firer := invocations.NewFirer(store, invocations.TargetFunc(func(context.Context, invocations.Fire) (invocations.Outcome, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("store unavailable")
		}
		return invocations.OutcomeStale, nil
	}))

	result, err := firer.OnFire(ctx, id)
	if err == nil || result.Outcome != invocations.OutcomeRetry {
		t.Fatalf("expected retry outcome, got %s %v", result.Outcome, err)
	}
	job, _ := store.Get(ctx, id)
	if job.Status != interfaces.JobStatusPending || job.Attempt != 1 {
		t.Fatalf("expected released job, got %+v", job)
	}

	result, err = firer.OnFire(ctx, id)
	if err != nil || result.Outcome != invocations.OutcomeStale {
		t.Fatalf("expected stale outcome, got %s %v", result.Outcome, err)
	}
	if firer.Counter().FiredFor(id) != 2 {
		t.Fatalf("expected two claims, got %d", firer.Counter().FiredFor(id))
	}
}

func TestOnFireMarksLastDeliveryAttemptFinal(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	id, _ := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(time.Minute), MaxAttempts: 2})
	clk.Advance(time.Hour)

	var finals []bool
	firer := invocations.NewFirer(store, invocations.TargetFunc(func(_ context.Context, fire invocations.Fire) (invocations.Outcome, error) {
		finals = append(finals, fire.Final())
		return "", errors.New("store unavailable")
	}))

	for range 3 {
		_, _ = firer.OnFire(ctx, id)
	}
	if len(finals) != 2 || finals[0] || !finals[1] {
		t.Fatalf("expected only the second attempt to be final, got %v", finals)
	}
	job, _ := store.Get(ctx, id)
	if job.Status != interfaces.JobStatusFailed || job.Attempt != 2 {
		t.Fatalf("expected exhausted job, got %+v", job)
	}
	if (invocations.Fire{Attempt: 5}).Final() {
		t.Fatalf("expected unbounded fire never to be final")
	}
}

func TestValidateMatchesScheduleWithoutEnqueueing(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		spec invocations.Spec
		want error
	}{
		{"past", invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(-time.Minute)}, domain.ErrInvalidSchedule},
		{"unknown", invocations.Spec{Subject: "h1", Action: "promote", FireAt: clk.Now().Add(time.Minute)}, domain.ErrUnknownAction},
	}
	for _, tc := range cases {
		if err := svc.Validate(tc.spec); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if err := svc.Validate(invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
	jobs, err := store.List(ctx, interfaces.JobFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected nothing enqueued, got %d", len(jobs))
	}
}

func TestDueIncludesMissedInvocations(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	first, _ := svc.Schedule(ctx, invocations.Spec{Subject: "h1", Action: "publish", FireAt: clk.Now().Add(time.Minute)})
	second, _ := svc.Schedule(ctx, invocations.Spec{Subject: "h2", Action: "depublish", FireAt: clk.Now().Add(2 * time.Minute)})
	if _, err := svc.Schedule(ctx, invocations.Spec{Subject: "h3", Action: "publish", FireAt: clk.Now().Add(48 * time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	clk.Advance(24 * time.Hour)
	due, err := svc.Due(ctx, 0)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 || due[0].ID != first || due[1].ID != second {
		t.Fatalf("expected both missed invocations in order, got %+v", due)
	}
}
