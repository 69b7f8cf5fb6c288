package workflow

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/google/uuid"
)

// PendingQuery narrows ListPending. Failed handles are always listed.
type PendingQuery struct {
	DueBefore *time.Time
	States    []domain.WorkflowState
	Limit     int
}

// PendingItem pairs a handle with its pending request. Request is nil for a
// failed handle whose request was already consumed.
type PendingItem struct {
	Handle  *documents.Handle
	Request *documents.PendingRequest
}

// ListPending returns outstanding work: pending requests matching the query
// plus every failed handle.
func (i *Interpreter) ListPending(ctx context.Context, query PendingQuery) ([]PendingItem, error) {
	requests, err := i.requests.List(ctx, documents.PendingFilter{})
	if err != nil {
		return nil, err
	}

	items := make([]PendingItem, 0, len(requests))
	seen := make(map[uuid.UUID]struct{}, len(requests))
	for _, request := range requests {
		handle, err := i.handles.GetByID(ctx, request.HandleID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if handle.State != domain.WorkflowStateFailed {
			if query.DueBefore != nil && !request.DueBy(*query.DueBefore) {
				continue
			}
			if len(query.States) > 0 && !slices.Contains(query.States, handle.State) {
				continue
			}
		}
		seen[handle.ID] = struct{}{}
		items = append(items, PendingItem{Handle: handle, Request: request})
	}

	handles, err := i.handles.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, handle := range handles {
		if handle.State != domain.WorkflowStateFailed {
			continue
		}
		if _, ok := seen[handle.ID]; ok {
			continue
		}
		items = append(items, PendingItem{Handle: handle})
	}

	sort.SliceStable(items, func(a, b int) bool {
		left, right := fireTime(items[a]), fireTime(items[b])
		if left.Equal(right) {
			return items[a].Handle.Path < items[b].Handle.Path
		}
		return left.Before(right)
	})
	if query.Limit > 0 && len(items) > query.Limit {
		items = items[:query.Limit]
	}
	return items, nil
}

func fireTime(item PendingItem) time.Time {
	if item.Request != nil && item.Request.FireAt != nil {
		return *item.Request.FireAt
	}
	return time.Time{}
}
