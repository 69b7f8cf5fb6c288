package scheduler

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-lifecycle/internal/identity"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

// ErrRunAtRequired reports a job spec without a fire time.
var ErrRunAtRequired = errors.New("scheduler: run_at is required")

// NewInMemory creates a deterministic scheduler implementation suitable for tests
// and single-process deployments.
func NewInMemory(opts ...Option) interfaces.Scheduler {
	mem := &inMemoryScheduler{
		options: resolve(opts),
		jobs:    make(map[string]*interfaces.Job),
		jobKeys: make(map[string]string),
	}
	return mem
}

// Option allows customizing scheduler implementations.
type Option func(*options)

type options struct {
	now        func() time.Time
	id         func(key string) string
	maxAttempt int
}

func resolve(opts []Option) options {
	cfg := options{
		now:        time.Now,
		id:         keyedID,
		maxAttempt: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithClock overrides the internal clock, used mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithIDGenerator overrides the ID generator used when enqueuing jobs. By
// default keyed jobs get an id derived from their key.
func WithIDGenerator(generator func() string) Option {
	return func(o *options) {
		if generator != nil {
			o.id = func(string) string { return generator() }
		}
	}
}

func keyedID(key string) string {
	if key == "" {
		return uuid.NewString()
	}
	return identity.InvocationID(key).String()
}

// WithDefaultMaxAttempts overrides the default retry attempts applied when the job spec leaves it unset.
func WithDefaultMaxAttempts(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.maxAttempt = limit
		}
	}
}

type inMemoryScheduler struct {
	options
	mu      sync.Mutex
	jobs    map[string]*interfaces.Job
	jobKeys map[string]string
}

func (s *inMemoryScheduler) Enqueue(_ context.Context, spec interfaces.JobSpec) (*interfaces.Job, error) {
	if spec.RunAt.IsZero() {
		return nil, ErrRunAtRequired
	}
	job := &interfaces.Job{
		JobSpec: spec,
	}
	job.Payload = maps.Clone(spec.Payload)
	if job.MaxAttempts == 0 {
		job.MaxAttempts = s.maxAttempt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Key != "" {
		if _, ok := s.jobKeys[job.Key]; ok {
			return nil, interfaces.ErrDuplicateJobKey
		}
	}

	job.ID = s.id(job.Key)
	now := s.now()
	job.Status = interfaces.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	s.jobs[job.ID] = job
	if job.Key != "" {
		s.jobKeys[job.Key] = job.ID
	}

	return cloneJob(job), nil
}

func (s *inMemoryScheduler) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	if job.Status != interfaces.JobStatusPending {
		return interfaces.ErrJobNotPending
	}
	s.removeLocked(job)
	return nil
}

func (s *inMemoryScheduler) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	s.removeLocked(job)
	return nil
}

func (s *inMemoryScheduler) Get(_ context.Context, id string) (*interfaces.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *inMemoryScheduler) GetByKey(_ context.Context, key string) (*interfaces.Job, error) {
	if key == "" {
		return nil, interfaces.ErrJobNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.jobKeys[key]
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *inMemoryScheduler) List(_ context.Context, filter interfaces.JobFilter) ([]*interfaces.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*interfaces.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Subject != "" && job.Subject != filter.Subject {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, job.Status) {
			continue
		}
		if filter.DueBefore != nil && job.RunAt.After(*filter.DueBefore) {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sortJobs(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *inMemoryScheduler) ListDue(ctx context.Context, until time.Time, limit int) ([]*interfaces.Job, error) {
	return s.List(ctx, interfaces.JobFilter{
		Statuses:  []interfaces.JobStatus{interfaces.JobStatusPending},
		DueBefore: &until,
		Limit:     limit,
	})
}

func (s *inMemoryScheduler) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != interfaces.JobStatusPending {
		return false, nil
	}
	job.Status = interfaces.JobStatusRunning
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *inMemoryScheduler) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	s.removeLocked(job)
	return nil
}

func (s *inMemoryScheduler) MarkFailed(_ context.Context, id string, failure error, retryable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return interfaces.ErrJobNotFound
	}
	job.Attempt++
	job.UpdatedAt = s.now()
	job.LastError = ""
	if failure != nil {
		job.LastError = failure.Error()
	}
	if !retryable || (job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts) {
		job.Status = interfaces.JobStatusFailed
	} else {
		job.Status = interfaces.JobStatusPending
	}
	return nil
}

func (s *inMemoryScheduler) Reconcile(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, job := range s.jobs {
		if job.Status != interfaces.JobStatusRunning {
			continue
		}
		job.Status = interfaces.JobStatusPending
		job.UpdatedAt = s.now()
		released++
	}
	return released, nil
}

func (s *inMemoryScheduler) removeLocked(job *interfaces.Job) {
	delete(s.jobs, job.ID)
	if job.Key != "" && s.jobKeys[job.Key] == job.ID {
		delete(s.jobKeys, job.Key)
	}
}

func sortJobs(jobs []*interfaces.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].RunAt.Equal(jobs[j].RunAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
}

func cloneJob(job *interfaces.Job) *interfaces.Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.Payload != nil {
		clone.Payload = maps.Clone(job.Payload)
	}
	return &clone
}
