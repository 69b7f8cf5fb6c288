package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-lifecycle/internal/identity"
	"github.com/goliatone/go-lifecycle/internal/scheduler"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/goliatone/go-lifecycle/pkg/testsupport"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func sequentialIDs() func() string {
	var n int64
	return func() string { return fmt.Sprintf("job-%03d", atomic.AddInt64(&n, 1)) }
}

func schedulers(t *testing.T, clock *fixedClock) map[string]interfaces.Scheduler {
	t.Helper()
	ctx := context.Background()
	db, err := testsupport.NewBunSQLiteDB(ctx, (*scheduler.JobRecord)(nil))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	opts := []scheduler.Option{
		scheduler.WithClock(clock.Now),
		scheduler.WithIDGenerator(sequentialIDs()),
		scheduler.WithDefaultMaxAttempts(2),
	}
	return map[string]interfaces.Scheduler{
		"memory": scheduler.NewInMemory(opts...),
		"bun":    scheduler.NewBun(db, opts...),
	}
}

func TestSchedulerEnqueueAndListDue(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	for name, sched := range schedulers(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			late := clock.now.Add(2 * time.Hour)
			soon := clock.now.Add(time.Hour)

			if _, err := sched.Enqueue(ctx, interfaces.JobSpec{Key: "k-late", Type: "publish", Subject: "doc-1", RunAt: late}); err != nil {
				t.Fatalf("enqueue late: %v", err)
			}
			soonJob, err := sched.Enqueue(ctx, interfaces.JobSpec{Key: "k-soon", Type: "depublish", Subject: "doc-2", RunAt: soon, Payload: map[string]any{"stage": "depublish"}})
			if err != nil {
				t.Fatalf("enqueue soon: %v", err)
			}
			if soonJob.MaxAttempts != 2 || soonJob.Status != interfaces.JobStatusPending {
				t.Fatalf("unexpected defaults: %+v", soonJob)
			}

			if _, err := sched.Enqueue(ctx, interfaces.JobSpec{Key: "k-soon", Type: "publish", Subject: "doc-2", RunAt: soon}); !errors.Is(err, interfaces.ErrDuplicateJobKey) {
				t.Fatalf("expected duplicate key error, got %v", err)
			}
			if _, err := sched.Enqueue(ctx, interfaces.JobSpec{Type: "publish"}); !errors.Is(err, scheduler.ErrRunAtRequired) {
				t.Fatalf("expected run_at required, got %v", err)
			}

			due, err := sched.ListDue(ctx, clock.now, 10)
			if err != nil || len(due) != 0 {
				t.Fatalf("expected nothing due yet, got %d (%v)", len(due), err)
			}

			due, err = sched.ListDue(ctx, late, 10)
			if err != nil {
				t.Fatalf("list due: %v", err)
			}
			if len(due) != 2 || due[0].Key != "k-soon" || due[1].Key != "k-late" {
				t.Fatalf("expected jobs ordered by run time, got %+v", due)
			}
			if due[0].Payload["stage"] != "depublish" {
				t.Fatalf("expected payload round trip, got %v", due[0].Payload)
			}

			limited, _ := sched.ListDue(ctx, late, 1)
			if len(limited) != 1 {
				t.Fatalf("expected limit to apply, got %d", len(limited))
			}

			bySubject, _ := sched.List(ctx, interfaces.JobFilter{Subject: "doc-1"})
			if len(bySubject) != 1 || bySubject[0].Key != "k-late" {
				t.Fatalf("expected subject filter, got %+v", bySubject)
			}

			byKey, err := sched.GetByKey(ctx, "k-late")
			if err != nil || byKey.Subject != "doc-1" {
				t.Fatalf("get by key: %+v %v", byKey, err)
			}
		})
	}
}

func TestSchedulerClaimIsExclusive(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	for name, sched := range schedulers(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job, err := sched.Enqueue(ctx, interfaces.JobSpec{Key: "claim", Type: "publish", Subject: "doc", RunAt: clock.now})
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			ok, err := sched.Claim(ctx, job.ID)
			if err != nil || !ok {
				t.Fatalf("expected first claim to win, got %v %v", ok, err)
			}
			ok, err = sched.Claim(ctx, job.ID)
			if err != nil || ok {
				t.Fatalf("expected second claim to lose, got %v %v", ok, err)
			}

			if err := sched.Cancel(ctx, job.ID); !errors.Is(err, interfaces.ErrJobNotPending) {
				t.Fatalf("expected running job to refuse cancel, got %v", err)
			}

			n, err := sched.Reconcile(ctx)
			if err != nil || n != 1 {
				t.Fatalf("expected one reconciled job, got %d %v", n, err)
			}
			reloaded, _ := sched.Get(ctx, job.ID)
			if reloaded.Status != interfaces.JobStatusPending {
				t.Fatalf("expected reconciled job to be pending, got %s", reloaded.Status)
			}

			if err := sched.Cancel(ctx, job.ID); err != nil {
				t.Fatalf("cancel pending: %v", err)
			}
			if _, err := sched.Get(ctx, job.ID); !errors.Is(err, interfaces.ErrJobNotFound) {
				t.Fatalf("expected cancelled job to be removed, got %v", err)
			}
			if err := sched.Cancel(ctx, job.ID); !errors.Is(err, interfaces.ErrJobNotFound) {
				t.Fatalf("expected not found on second cancel, got %v", err)
			}
			if ok, _ := sched.Claim(ctx, job.ID); ok {
				t.Fatal("expected claim on removed job to fail")
			}
		})
	}
}

func TestSchedulerMarkFailedRetriesUntilLimit(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	for name, sched := range schedulers(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job, _ := sched.Enqueue(ctx, interfaces.JobSpec{Key: "retry", Type: "publish", Subject: "doc", RunAt: clock.now})

			_, _ = sched.Claim(ctx, job.ID)
			if err := sched.MarkFailed(ctx, job.ID, errors.New("lock timeout"), true); err != nil {
				t.Fatalf("mark failed: %v", err)
			}
			first, _ := sched.Get(ctx, job.ID)
			if first.Status != interfaces.JobStatusPending || first.Attempt != 1 || first.LastError != "lock timeout" {
				t.Fatalf("expected retryable failure to return to pending, got %+v", first)
			}

			_, _ = sched.Claim(ctx, job.ID)
			_ = sched.MarkFailed(ctx, job.ID, errors.New("lock timeout"), true)
			second, _ := sched.Get(ctx, job.ID)
			if second.Status != interfaces.JobStatusFailed || second.Attempt != 2 {
				t.Fatalf("expected attempts exhausted, got %+v", second)
			}

			failedOnly, _ := sched.List(ctx, interfaces.JobFilter{Statuses: []interfaces.JobStatus{interfaces.JobStatusFailed}})
			if len(failedOnly) != 1 {
				t.Fatalf("expected failed job visible, got %d", len(failedOnly))
			}

			other, _ := sched.Enqueue(ctx, interfaces.JobSpec{Key: "fatal", Type: "publish", Subject: "doc-2", RunAt: clock.now})
			_, _ = sched.Claim(ctx, other.ID)
			_ = sched.MarkFailed(ctx, other.ID, errors.New("action failed"), false)
			fatal, _ := sched.Get(ctx, other.ID)
			if fatal.Status != interfaces.JobStatusFailed || fatal.Attempt != 1 {
				t.Fatalf("expected non-retryable failure to stick, got %+v", fatal)
			}

			if err := sched.Delete(ctx, other.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := sched.Complete(ctx, job.ID); err != nil {
				t.Fatalf("complete: %v", err)
			}
			remaining, _ := sched.List(ctx, interfaces.JobFilter{})
			if len(remaining) != 0 {
				t.Fatalf("expected empty table, got %d", len(remaining))
			}
		})
	}
}

func TestInvocationKey(t *testing.T) {
	if got := scheduler.InvocationKey("h1", "publish", "c1"); got != "handle:h1:publish:c1" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestKeyedJobsGetDeterministicIDs(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	db, err := testsupport.NewBunSQLiteDB(ctx, (*scheduler.JobRecord)(nil))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for name, sched := range map[string]interfaces.Scheduler{
		"memory": scheduler.NewInMemory(scheduler.WithClock(clock.Now)),
		"bun":    scheduler.NewBun(db, scheduler.WithClock(clock.Now)),
	} {
		t.Run(name, func(t *testing.T) {
			key := scheduler.InvocationKey("h-"+name, "publish", "c1")
			spec := interfaces.JobSpec{Key: key, Type: "publish", Subject: "h-" + name, RunAt: clock.now.Add(time.Hour)}

			first, err := sched.Enqueue(ctx, spec)
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if want := identity.InvocationID(key).String(); first.ID != want {
				t.Fatalf("expected id %s derived from key, got %s", want, first.ID)
			}
			if err := sched.Cancel(ctx, first.ID); err != nil {
				t.Fatalf("cancel: %v", err)
			}
			second, err := sched.Enqueue(ctx, spec)
			if err != nil {
				t.Fatalf("re-enqueue: %v", err)
			}
			if second.ID != first.ID {
				t.Fatalf("expected re-enqueued stage to reuse id %s, got %s", first.ID, second.ID)
			}

			unkeyed, err := sched.Enqueue(ctx, interfaces.JobSpec{Type: "publish", Subject: "h-" + name, RunAt: clock.now.Add(time.Hour)})
			if err != nil {
				t.Fatalf("enqueue unkeyed: %v", err)
			}
			if unkeyed.ID == "" || unkeyed.ID == first.ID {
				t.Fatalf("expected a random id for unkeyed jobs, got %q", unkeyed.ID)
			}
		})
	}
}
