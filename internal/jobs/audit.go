package jobs

import (
	"context"
	"sync"
	"time"
)

// AuditEvent captures one invocation firing handled by the dispatcher.
type AuditEvent struct {
	InvocationID string
	HandleID     string
	Action       string
	Outcome      string
	Attempt      int
	Error        string
	OccurredAt   time.Time
}

// AuditRecorder persists audit events.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context) ([]AuditEvent, error)
	Clear(ctx context.Context) error
}

const defaultAuditCapacity = 1024

// InMemoryAuditRecorder keeps the most recent audit events in memory. Once
// capacity is reached the oldest entries are dropped.
type InMemoryAuditRecorder struct {
	mu       sync.Mutex
	events   []AuditEvent
	capacity int
	err      error
}

// NewInMemoryAuditRecorder constructs an empty recorder. A non-positive
// capacity selects the default.
func NewInMemoryAuditRecorder(capacity ...int) *InMemoryAuditRecorder {
	limit := defaultAuditCapacity
	if len(capacity) > 0 && capacity[0] > 0 {
		limit = capacity[0]
	}
	return &InMemoryAuditRecorder{capacity: limit}
}

// Record stores the supplied event.
func (r *InMemoryAuditRecorder) Record(_ context.Context, event AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	if overflow := len(r.events) - r.capacity; overflow > 0 {
		r.events = append(r.events[:0:0], r.events[overflow:]...)
	}
	return nil
}

// Events returns a snapshot of recorded audit entries.
func (r *InMemoryAuditRecorder) Events() []AuditEvent {
	events, _ := r.List(context.Background())
	return events
}

// ForHandle returns the entries recorded for one handle, oldest first.
func (r *InMemoryAuditRecorder) ForHandle(handleID string) []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditEvent
	for _, event := range r.events {
		if event.HandleID == handleID {
			out = append(out, event)
		}
	}
	return out
}

// Fail configures the recorder to return err on subsequent Record calls.
func (r *InMemoryAuditRecorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// List returns the audit events recorded so far.
func (r *InMemoryAuditRecorder) List(context.Context) ([]AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEvent, len(r.events))
	copy(out, r.events)
	return out, nil
}

// Clear removes all recorded events.
func (r *InMemoryAuditRecorder) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	return nil
}
