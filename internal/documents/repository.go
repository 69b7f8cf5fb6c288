package documents

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HandleRepository persists document handles.
type HandleRepository interface {
	Create(ctx context.Context, handle *Handle) (*Handle, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Handle, error)
	GetByPath(ctx context.Context, path string) (*Handle, error)
	List(ctx context.Context) ([]*Handle, error)
	Update(ctx context.Context, handle *Handle) (*Handle, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PendingRequestRepository persists pending requests. Create never overwrites:
// a second request for the same handle returns *domain.ConflictError.
type PendingRequestRepository interface {
	Create(ctx context.Context, request *PendingRequest) (*PendingRequest, error)
	GetByHandle(ctx context.Context, handleID uuid.UUID) (*PendingRequest, error)
	Update(ctx context.Context, request *PendingRequest) (*PendingRequest, error)
	DeleteByHandle(ctx context.Context, handleID uuid.UUID) error
	List(ctx context.Context, filter PendingFilter) ([]*PendingRequest, error)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
