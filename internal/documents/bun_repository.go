package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lifecycle/internal/domain"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewHandleModelRepository creates the generic repository for Handle rows.
func NewHandleModelRepository(db *bun.DB) repository.Repository[*Handle] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*Handle]{
		NewRecord: func() *Handle { return &Handle{} },
		GetID: func(h *Handle) uuid.UUID {
			return h.ID
		},
		SetID: func(h *Handle, id uuid.UUID) {
			h.ID = id
		},
		GetIdentifier: func() string {
			return "path"
		},
		GetIdentifierValue: func(h *Handle) string {
			return h.Path
		},
	})
}

// NewPendingRequestModelRepository creates the generic repository for PendingRequest rows.
func NewPendingRequestModelRepository(db *bun.DB) repository.Repository[*PendingRequest] {
	return repository.MustNewRepository(db, repository.ModelHandlers[*PendingRequest]{
		NewRecord: func() *PendingRequest { return &PendingRequest{} },
		GetID: func(r *PendingRequest) uuid.UUID {
			return r.ID
		},
		SetID: func(r *PendingRequest, id uuid.UUID) {
			r.ID = id
		},
		GetIdentifier: func() string {
			return "handle_id"
		},
		GetIdentifierValue: func(r *PendingRequest) string {
			return r.HandleID.String()
		},
	})
}

// BunHandleRepository implements HandleRepository on bun.
type BunHandleRepository struct {
	repo repository.Repository[*Handle]
}

// NewBunHandleRepository creates a handle repository backed by db.
func NewBunHandleRepository(db *bun.DB) *BunHandleRepository {
	return &BunHandleRepository{repo: NewHandleModelRepository(db)}
}

var _ HandleRepository = (*BunHandleRepository)(nil)

func (r *BunHandleRepository) Create(ctx context.Context, handle *Handle) (*Handle, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	record, err := r.repo.Create(ctx, handle)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{HandleID: handle.Path, Reason: "a handle already tracks this path"}
		}
		return nil, fmt.Errorf("document handle repository error: %w", err)
	}
	return record, nil
}

func (r *BunHandleRepository) GetByID(ctx context.Context, id uuid.UUID) (*Handle, error) {
	record, err := r.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapRepositoryError(err, "document handle", id.String())
	}
	return record, nil
}

func (r *BunHandleRepository) GetByPath(ctx context.Context, path string) (*Handle, error) {
	path = strings.TrimSpace(path)
	record, err := r.repo.GetByIdentifier(ctx, path)
	if err != nil {
		return nil, mapRepositoryError(err, "document handle", path)
	}
	return record, nil
}

func (r *BunHandleRepository) List(ctx context.Context) ([]*Handle, error) {
	records, _, err := r.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("?TableAlias.path ASC")
		}),
	)
	return records, err
}

func (r *BunHandleRepository) Update(ctx context.Context, handle *Handle) (*Handle, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.GetByID(ctx, handle.ID); err != nil {
		return nil, err
	}
	record, err := r.repo.Update(ctx, handle,
		repository.UpdateByID(handle.ID.String()),
		repository.UpdateColumns(
			"path",
			"draft",
			"unpublished",
			"published",
			"archived_ref",
			"checked_out",
			"archived",
			"state",
			"last_action",
			"last_error",
			"updated_at",
		),
	)
	if err != nil {
		return nil, mapRepositoryError(err, "document handle", handle.ID.String())
	}
	return record, nil
}

func (r *BunHandleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return r.repo.Delete(ctx, existing)
}

// BunPendingRequestRepository implements PendingRequestRepository on bun. The
// unique index on handle_id backs the single-request rule.
type BunPendingRequestRepository struct {
	repo repository.Repository[*PendingRequest]
}

// NewBunPendingRequestRepository creates a pending request repository backed by db.
func NewBunPendingRequestRepository(db *bun.DB) *BunPendingRequestRepository {
	return &BunPendingRequestRepository{repo: NewPendingRequestModelRepository(db)}
}

var _ PendingRequestRepository = (*BunPendingRequestRepository)(nil)

func (r *BunPendingRequestRepository) Create(ctx context.Context, request *PendingRequest) (*PendingRequest, error) {
	existing, err := r.GetByHandle(ctx, request.HandleID)
	if err == nil {
		return nil, &domain.ConflictError{
			HandleID:  request.HandleID.String(),
			Pending:   existing.Kind,
			Attempted: request.Kind,
		}
	}
	if !isNotFound(err) {
		return nil, err
	}

	record, err := r.repo.Create(ctx, request)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ConflictError{HandleID: request.HandleID.String(), Attempted: request.Kind, Reason: "a pending request already exists"}
		}
		return nil, fmt.Errorf("pending request repository error: %w", err)
	}
	return record, nil
}

func (r *BunPendingRequestRepository) GetByHandle(ctx context.Context, handleID uuid.UUID) (*PendingRequest, error) {
	records, _, err := r.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.handle_id = ?", handleID)
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, mapRepositoryError(err, "pending request", handleID.String())
	}
	if len(records) == 0 {
		return nil, &domain.NotFoundError{Resource: "pending request", Key: handleID.String()}
	}
	return records[0], nil
}

func (r *BunPendingRequestRepository) Update(ctx context.Context, request *PendingRequest) (*PendingRequest, error) {
	existing, err := r.GetByHandle(ctx, request.HandleID)
	if err != nil {
		return nil, err
	}
	if existing.ID != request.ID {
		return nil, &domain.NotFoundError{Resource: "pending request", Key: request.ID.String()}
	}
	record, err := r.repo.Update(ctx, request,
		repository.UpdateByID(request.ID.String()),
		repository.UpdateColumns(
			"kind",
			"stage",
			"publish_at",
			"depublish_at",
			"fire_at",
			"invocation_id",
			"correlation_id",
			"updated_at",
		),
	)
	if err != nil {
		return nil, mapRepositoryError(err, "pending request", request.ID.String())
	}
	return record, nil
}

func (r *BunPendingRequestRepository) DeleteByHandle(ctx context.Context, handleID uuid.UUID) error {
	existing, err := r.GetByHandle(ctx, handleID)
	if err != nil {
		return err
	}
	return r.repo.Delete(ctx, existing)
}

func (r *BunPendingRequestRepository) List(ctx context.Context, filter PendingFilter) ([]*PendingRequest, error) {
	processor := repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter.DueBefore != nil {
			q = q.WhereGroup(" AND ", func(g *bun.SelectQuery) *bun.SelectQuery {
				return g.Where("?TableAlias.fire_at IS NULL").
					WhereOr("?TableAlias.fire_at <= ?", filter.DueBefore.UTC())
			})
		}
		if len(filter.HandleIDs) > 0 {
			q = q.Where("?TableAlias.handle_id IN (?)", bun.In(filter.HandleIDs))
		}
		return q.OrderExpr("CASE WHEN ?TableAlias.fire_at IS NULL THEN 0 ELSE 1 END ASC").
			OrderExpr("?TableAlias.fire_at ASC").
			OrderExpr("?TableAlias.created_at ASC")
	})

	var (
		records []*PendingRequest
		err     error
	)
	if filter.Limit > 0 {
		records, _, err = r.repo.List(ctx, processor, repository.SelectPaginate(filter.Limit, 0))
	} else {
		records, _, err = r.repo.List(ctx, processor)
	}
	return records, err
}

func mapRepositoryError(err error, resource, key string) error {
	if err == nil {
		return nil
	}
	if goerrors.IsCategory(err, repository.CategoryDatabaseNotFound) {
		return &domain.NotFoundError{Resource: resource, Key: key}
	}
	return fmt.Errorf("%s repository error: %w", resource, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
