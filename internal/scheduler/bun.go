package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/uptrace/bun"
)

// JobRecord is the schedule table row.
type JobRecord struct {
	bun.BaseModel `bun:"table:scheduled_invocations,alias:si"`

	ID            string               `bun:"id,pk"`
	Key           string               `bun:"job_key,nullzero,unique"`
	Type          string               `bun:"type,notnull"`
	Subject       string               `bun:"subject,notnull"`
	CorrelationID string               `bun:"correlation_id"`
	RunAt         time.Time            `bun:"run_at,notnull"`
	Payload       map[string]any       `bun:"payload,type:jsonb"`
	Status        interfaces.JobStatus `bun:"status,notnull"`
	Attempt       int                  `bun:"attempt,notnull,default:0"`
	MaxAttempts   int                  `bun:"max_attempts,notnull,default:0"`
	LastError     string               `bun:"last_error"`
	CreatedAt     time.Time            `bun:"created_at,notnull"`
	UpdatedAt     time.Time            `bun:"updated_at,notnull"`
}

func (r *JobRecord) toJob() *interfaces.Job {
	return &interfaces.Job{
		JobSpec: interfaces.JobSpec{
			Key:           r.Key,
			Type:          r.Type,
			Subject:       r.Subject,
			CorrelationID: r.CorrelationID,
			RunAt:         r.RunAt,
			Payload:       maps.Clone(r.Payload),
			MaxAttempts:   r.MaxAttempts,
		},
		ID:        r.ID,
		Attempt:   r.Attempt,
		LastError: r.LastError,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// BunScheduler stores jobs in a SQL table. Status changes are conditional
// updates, so several dispatcher processes can share the table.
type BunScheduler struct {
	options
	db bun.IDB
}

// NewBun creates a durable scheduler over db.
func NewBun(db bun.IDB, opts ...Option) *BunScheduler {
	return &BunScheduler{options: resolve(opts), db: db}
}

var _ interfaces.Scheduler = (*BunScheduler)(nil)

func (s *BunScheduler) Enqueue(ctx context.Context, spec interfaces.JobSpec) (*interfaces.Job, error) {
	if spec.RunAt.IsZero() {
		return nil, ErrRunAtRequired
	}
	now := s.now().UTC()
	record := &JobRecord{
		ID:            s.id(spec.Key),
		Key:           spec.Key,
		Type:          spec.Type,
		Subject:       spec.Subject,
		CorrelationID: spec.CorrelationID,
		RunAt:         spec.RunAt.UTC(),
		Payload:       maps.Clone(spec.Payload),
		Status:        interfaces.JobStatusPending,
		MaxAttempts:   spec.MaxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if record.MaxAttempts == 0 {
		record.MaxAttempts = s.maxAttempt
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, interfaces.ErrDuplicateJobKey
		}
		return nil, fmt.Errorf("scheduler: enqueue: %w", err)
	}
	return record.toJob(), nil
}

func (s *BunScheduler) Cancel(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().
		Model((*JobRecord)(nil)).
		Where("id = ?", id).
		Where("status = ?", interfaces.JobStatusPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: cancel: %w", err)
	}
	if affected(res) > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return interfaces.ErrJobNotPending
}

func (s *BunScheduler) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*JobRecord)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: delete: %w", err)
	}
	if affected(res) == 0 {
		return interfaces.ErrJobNotFound
	}
	return nil
}

func (s *BunScheduler) Get(ctx context.Context, id string) (*interfaces.Job, error) {
	record := new(JobRecord)
	if err := s.db.NewSelect().Model(record).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("scheduler: get: %w", err)
	}
	return record.toJob(), nil
}

func (s *BunScheduler) GetByKey(ctx context.Context, key string) (*interfaces.Job, error) {
	if key == "" {
		return nil, interfaces.ErrJobNotFound
	}
	record := new(JobRecord)
	if err := s.db.NewSelect().Model(record).Where("job_key = ?", key).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("scheduler: get by key: %w", err)
	}
	return record.toJob(), nil
}

func (s *BunScheduler) List(ctx context.Context, filter interfaces.JobFilter) ([]*interfaces.Job, error) {
	var records []JobRecord
	q := s.db.NewSelect().Model(&records)
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(filter.Statuses))
	}
	if filter.DueBefore != nil {
		q = q.Where("run_at <= ?", filter.DueBefore.UTC())
	}
	q = q.OrderExpr("run_at ASC").OrderExpr("created_at ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scheduler: list: %w", err)
	}
	out := make([]*interfaces.Job, 0, len(records))
	for i := range records {
		out = append(out, records[i].toJob())
	}
	return out, nil
}

func (s *BunScheduler) ListDue(ctx context.Context, until time.Time, limit int) ([]*interfaces.Job, error) {
	return s.List(ctx, interfaces.JobFilter{
		Statuses:  []interfaces.JobStatus{interfaces.JobStatusPending},
		DueBefore: &until,
		Limit:     limit,
	})
}

func (s *BunScheduler) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*JobRecord)(nil)).
		Set("status = ?", interfaces.JobStatusRunning).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Where("status = ?", interfaces.JobStatusPending).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("scheduler: claim: %w", err)
	}
	return affected(res) == 1, nil
}

func (s *BunScheduler) Complete(ctx context.Context, id string) error {
	return s.Delete(ctx, id)
}

func (s *BunScheduler) MarkFailed(ctx context.Context, id string, failure error, retryable bool) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	attempt := job.Attempt + 1
	status := interfaces.JobStatusPending
	if !retryable || (job.MaxAttempts > 0 && attempt >= job.MaxAttempts) {
		status = interfaces.JobStatusFailed
	}
	lastError := ""
	if failure != nil {
		lastError = failure.Error()
	}
	_, err = s.db.NewUpdate().
		Model((*JobRecord)(nil)).
		Set("attempt = ?", attempt).
		Set("status = ?", status).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: mark failed: %w", err)
	}
	return nil
}

func (s *BunScheduler) Reconcile(ctx context.Context) (int, error) {
	res, err := s.db.NewUpdate().
		Model((*JobRecord)(nil)).
		Set("status = ?", interfaces.JobStatusPending).
		Set("updated_at = ?", s.now().UTC()).
		Where("status = ?", interfaces.JobStatusRunning).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: reconcile: %w", err)
	}
	return int(affected(res)), nil
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
