package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLockerSerializesPerKey(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "doc-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer unlock()
			now := atomic.AddInt32(&active, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if now <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if locker.Len() != 0 {
		t.Fatalf("expected entries to be released, got %d", locker.Len())
	}
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	timeout, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(timeout, "b")
	if err != nil {
		t.Fatalf("expected independent key to lock, got %v", err)
	}
	unlockB()
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, _ := locker.Lock(context.Background(), "doc")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "doc"); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected ErrLockUnavailable, got %v", err)
	}
	unlock()
	unlock()
}

func newRedisLocker(t *testing.T, opts ...RedisOption) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, opts...), mr
}

func TestRedisLockerExclusiveLease(t *testing.T) {
	locker, mr := newRedisLocker(t, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 3)
	}))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "doc-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists(defaultRedisPrefix + "doc-1") {
		t.Fatal("expected lease key in redis")
	}

	if _, err := locker.Lock(ctx, "doc-1"); !errors.Is(err, ErrLockUnavailable) {
		t.Fatalf("expected second lock to fail, got %v", err)
	}

	unlock()
	if mr.Exists(defaultRedisPrefix + "doc-1") {
		t.Fatal("expected lease to be released")
	}

	again, err := locker.Lock(ctx, "doc-1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	locker, mr := newRedisLocker(t, WithPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "doc-2")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := mr.Set("test:doc-2", "someone-else"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	unlock()

	got, err := mr.Get("test:doc-2")
	if err != nil || got != "someone-else" {
		t.Fatalf("expected foreign lease to survive, got %q (%v)", got, err)
	}
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "doc-3")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	second, err := locker.Lock(waitCtx, "doc-3")
	if err != nil {
		t.Fatalf("expected lock after release, got %v", err)
	}
	second()
}
