package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrJobNotFound reports missing jobs when looking them up by ID or key.
	ErrJobNotFound = errors.New("scheduler: job not found")
	// ErrJobNotPending reports a state-guarded operation against a job that already left the pending status.
	ErrJobNotPending = errors.New("scheduler: job is not pending")
	// ErrDuplicateJobKey reports an enqueue against a key that already has a live job.
	ErrDuplicateJobKey = errors.New("scheduler: duplicate job key")
)

// Scheduler is the durable schedule table behind scheduled invocations. Every
// operation that changes a job's status is a compare-and-set so concurrent
// workers and cancellations never both win.
type Scheduler interface {
	// Enqueue persists a job. A live job with the same key fails with ErrDuplicateJobKey.
	Enqueue(ctx context.Context, spec JobSpec) (*Job, error)
	// Cancel removes a pending job. Jobs that are running, failed or gone return ErrJobNotPending or ErrJobNotFound.
	Cancel(ctx context.Context, id string) error
	// Delete removes a job regardless of its status.
	Delete(ctx context.Context, id string) error
	// Get returns the stored job by identifier.
	Get(ctx context.Context, id string) (*Job, error)
	// GetByKey returns the live job that matches the supplied key.
	GetByKey(ctx context.Context, key string) (*Job, error)
	// List returns jobs matching the filter ordered by run time.
	List(ctx context.Context, filter JobFilter) ([]*Job, error)
	// ListDue returns pending jobs scheduled to run at or before the supplied instant.
	ListDue(ctx context.Context, until time.Time, limit int) ([]*Job, error)
	// Claim moves a pending job to running. It returns false when another worker won or the job left pending.
	Claim(ctx context.Context, id string) (bool, error)
	// Complete removes a job after it fired.
	Complete(ctx context.Context, id string) error
	// MarkFailed records a failed attempt. Retryable failures return the job to pending until MaxAttempts is reached.
	MarkFailed(ctx context.Context, id string, err error, retryable bool) error
	// Reconcile returns running jobs to pending. It runs on startup so fires interrupted by a crash catch up.
	Reconcile(ctx context.Context) (int, error)
}

// JobStatus describes the lifecycle of a scheduled job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusFailed  JobStatus = "failed"
)

// JobSpec captures the required information to enqueue a job.
type JobSpec struct {
	// Key uniquely identifies the live job for a subject and stage.
	Key string
	// Type is the action name the job runs when it fires (e.g. publish).
	Type string
	// Subject identifies the document handle the job targets.
	Subject string
	// CorrelationID ties the job back to the pending request that created it.
	CorrelationID string
	// RunAt specifies when the job should execute.
	RunAt time.Time
	// Payload carries the action arguments.
	Payload map[string]any
	// MaxAttempts limits delivery retries. Zero applies the scheduler default.
	MaxAttempts int
}

// Job represents a stored job entry with metadata managed by the scheduler implementation.
type Job struct {
	JobSpec
	ID        string
	Attempt   int
	LastError string
	Status    JobStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobFilter narrows List results. Zero values match everything.
type JobFilter struct {
	Subject   string
	Statuses  []JobStatus
	DueBefore *time.Time
	Limit     int
}
