package documents

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VariantRef points at a node in the content store. The handle never owns it.
type VariantRef struct {
	Kind domain.VariantKind `json:"kind"`
	Path string             `json:"path"`
}

// Handle tracks the variants of one logical document and its workflow state.
type Handle struct {
	bun.BaseModel `bun:"table:document_handles,alias:dh"`

	ID          uuid.UUID            `bun:",pk,type:uuid" json:"id"`
	Path        string               `bun:"path,notnull,unique" json:"path"`
	Draft       *VariantRef          `bun:"draft,type:jsonb" json:"draft,omitempty"`
	Unpublished *VariantRef          `bun:"unpublished,type:jsonb" json:"unpublished,omitempty"`
	Published   *VariantRef          `bun:"published,type:jsonb" json:"published,omitempty"`
	ArchivedRef *VariantRef          `bun:"archived_ref,type:jsonb" json:"archived_ref,omitempty"`
	CheckedOut  bool                 `bun:"checked_out,notnull,default:false" json:"checked_out"`
	Archived    bool                 `bun:"archived,notnull,default:false" json:"archived"`
	State       domain.WorkflowState `bun:"state,notnull" json:"state"`
	LastAction  string               `bun:"last_action" json:"last_action,omitempty"`
	LastError   string               `bun:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time            `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time            `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

var (
	ErrHandleIDRequired   = errors.New("documents: handle id required")
	ErrHandlePathRequired = errors.New("documents: handle path required")
	ErrDraftNotCheckedOut = errors.New("documents: draft variant requires the document to be checked out")
)

// Variant returns the reference stored for kind.
func (h *Handle) Variant(kind domain.VariantKind) *VariantRef {
	if h == nil {
		return nil
	}
	switch kind {
	case domain.VariantDraft:
		return h.Draft
	case domain.VariantUnpublished:
		return h.Unpublished
	case domain.VariantPublished:
		return h.Published
	case domain.VariantArchived:
		return h.ArchivedRef
	default:
		return nil
	}
}

// SetVariant replaces the slot for kind. An empty path clears it.
func (h *Handle) SetVariant(kind domain.VariantKind, path string) error {
	var ref *VariantRef
	if path != "" {
		ref = &VariantRef{Kind: kind, Path: path}
	}
	switch kind {
	case domain.VariantDraft:
		h.Draft = ref
		if ref != nil {
			h.CheckedOut = true
		}
	case domain.VariantUnpublished:
		h.Unpublished = ref
	case domain.VariantPublished:
		h.Published = ref
	case domain.VariantArchived:
		h.ArchivedRef = ref
	default:
		return fmt.Errorf("documents: unsupported variant kind %q", kind)
	}
	return nil
}

// ClearVariant removes the slot for kind.
func (h *Handle) ClearVariant(kind domain.VariantKind) error {
	return h.SetVariant(kind, "")
}

// HasVariants reports whether any live slot (draft, unpublished, published) is occupied.
func (h *Handle) HasVariants() bool {
	return h.Draft != nil || h.Unpublished != nil || h.Published != nil
}

// Retains reports whether the handle still points at any node, archived included.
func (h *Handle) Retains() bool {
	return h.HasVariants() || h.ArchivedRef != nil
}

// Validate checks the structural invariants of the handle.
func (h *Handle) Validate() error {
	if h == nil || h.ID == uuid.Nil {
		return ErrHandleIDRequired
	}
	if h.Path == "" {
		return ErrHandlePathRequired
	}
	for _, slot := range []struct {
		kind domain.VariantKind
		ref  *VariantRef
	}{
		{domain.VariantDraft, h.Draft},
		{domain.VariantUnpublished, h.Unpublished},
		{domain.VariantPublished, h.Published},
		{domain.VariantArchived, h.ArchivedRef},
	} {
		if slot.ref == nil {
			continue
		}
		if slot.ref.Kind != slot.kind {
			return fmt.Errorf("documents: %s slot holds a %s reference", slot.kind, slot.ref.Kind)
		}
		if slot.ref.Path == "" {
			return fmt.Errorf("documents: %s reference has no path", slot.kind)
		}
	}
	if h.Draft != nil && !h.CheckedOut {
		return ErrDraftNotCheckedOut
	}
	return nil
}

// PendingRequest is the single outstanding publication request of a handle.
type PendingRequest struct {
	bun.BaseModel `bun:"table:pending_requests,alias:pr"`

	ID            uuid.UUID           `bun:",pk,type:uuid" json:"id"`
	HandleID      uuid.UUID           `bun:"handle_id,notnull,unique,type:uuid" json:"handle_id"`
	Kind          domain.RequestKind  `bun:"kind,notnull" json:"kind"`
	Stage         domain.RequestStage `bun:"stage,notnull" json:"stage"`
	PublishAt     *time.Time          `bun:"publish_at,nullzero" json:"publish_at,omitempty"`
	DepublishAt   *time.Time          `bun:"depublish_at,nullzero" json:"depublish_at,omitempty"`
	FireAt        *time.Time          `bun:"fire_at,nullzero" json:"fire_at,omitempty"`
	RequestedBy   uuid.UUID           `bun:"requested_by,type:uuid" json:"requested_by"`
	InvocationID  string              `bun:"invocation_id" json:"invocation_id,omitempty"`
	CorrelationID string              `bun:"correlation_id,notnull" json:"correlation_id"`
	CreatedAt     time.Time           `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time           `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

// Action names the library action the current stage executes.
func (r *PendingRequest) Action() string {
	if r == nil {
		return ""
	}
	if r.Stage == domain.StageDepublish {
		return "depublish"
	}
	return "publish"
}

// StageTime returns the configured time of the current stage, nil for immediate.
func (r *PendingRequest) StageTime() *time.Time {
	if r == nil {
		return nil
	}
	if r.Stage == domain.StageDepublish {
		return r.DepublishAt
	}
	return r.PublishAt
}

// DueBy reports whether the request should have fired by t.
func (r *PendingRequest) DueBy(t time.Time) bool {
	if r == nil {
		return false
	}
	return r.FireAt == nil || !r.FireAt.After(t)
}

// PendingFilter narrows ListPending.
type PendingFilter struct {
	DueBefore *time.Time
	HandleIDs []uuid.UUID
	Limit     int
}

func cloneHandle(src *Handle) *Handle {
	if src == nil {
		return nil
	}
	cloned := *src
	cloned.Draft = cloneRef(src.Draft)
	cloned.Unpublished = cloneRef(src.Unpublished)
	cloned.Published = cloneRef(src.Published)
	cloned.ArchivedRef = cloneRef(src.ArchivedRef)
	return &cloned
}

func cloneRef(src *VariantRef) *VariantRef {
	if src == nil {
		return nil
	}
	cloned := *src
	return &cloned
}

func cloneRequest(src *PendingRequest) *PendingRequest {
	if src == nil {
		return nil
	}
	cloned := *src
	cloned.PublishAt = cloneTime(src.PublishAt)
	cloned.DepublishAt = cloneTime(src.DepublishAt)
	cloned.FireAt = cloneTime(src.FireAt)
	return &cloned
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	t := *src
	return &t
}

// Clone returns a deep copy of the handle.
func (h *Handle) Clone() *Handle { return cloneHandle(h) }

// Clone returns a deep copy of the request.
func (r *PendingRequest) Clone() *PendingRequest { return cloneRequest(r) }
