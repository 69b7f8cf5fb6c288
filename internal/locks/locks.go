// Package locks serializes work per document handle. Every command and every
// fired invocation for a handle runs while holding that handle's lock.
package locks

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrLockUnavailable reports that the lock could not be acquired before the
// context or the retry budget ran out.
var ErrLockUnavailable = errors.New("locks: lock unavailable")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker grants exclusive access to a key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// MemoryLocker holds one weighted semaphore per key. Entries are dropped once
// no caller holds or waits on them.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewMemoryLocker constructs an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*lockEntry)}
}

var _ Locker = (*MemoryLocker)(nil)

// Lock blocks until key is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	entry := l.acquireEntry(key)
	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.releaseEntry(key)
		return nil, errors.Join(ErrLockUnavailable, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.releaseEntry(key)
		})
	}, nil
}

// Len reports the number of tracked keys.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLocker) acquireEntry(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) releaseEntry(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}
