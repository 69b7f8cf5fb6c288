package documents

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/google/uuid"
)

type memoryHandleRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Handle
	byPath map[string]uuid.UUID
}

// NewMemoryHandleRepository constructs an in-memory handle repository.
func NewMemoryHandleRepository() HandleRepository {
	return &memoryHandleRepository{
		byID:   make(map[uuid.UUID]*Handle),
		byPath: make(map[string]uuid.UUID),
	}
}

func (m *memoryHandleRepository) Create(_ context.Context, handle *Handle) (*Handle, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byPath[handle.Path]; exists {
		return nil, &domain.ConflictError{HandleID: handle.Path, Reason: "a handle already tracks this path"}
	}
	cloned := cloneHandle(handle)
	m.byID[cloned.ID] = cloned
	m.byPath[cloned.Path] = cloned.ID
	return cloneHandle(cloned), nil
}

func (m *memoryHandleRepository) GetByID(_ context.Context, id uuid.UUID) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.byID[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "document handle", Key: id.String()}
	}
	return cloneHandle(record), nil
}

func (m *memoryHandleRepository) GetByPath(_ context.Context, path string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPath[strings.TrimSpace(path)]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "document handle", Key: path}
	}
	return cloneHandle(m.byID[id]), nil
}

func (m *memoryHandleRepository) List(_ context.Context) ([]*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Handle, 0, len(m.byID))
	for _, record := range m.byID {
		records = append(records, cloneHandle(record))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

func (m *memoryHandleRepository) Update(_ context.Context, handle *Handle) (*Handle, error) {
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[handle.ID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "document handle", Key: handle.ID.String()}
	}
	if existing.Path != handle.Path {
		delete(m.byPath, existing.Path)
		m.byPath[handle.Path] = handle.ID
	}
	cloned := cloneHandle(handle)
	m.byID[cloned.ID] = cloned
	return cloneHandle(cloned), nil
}

func (m *memoryHandleRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[id]
	if !ok {
		return &domain.NotFoundError{Resource: "document handle", Key: id.String()}
	}
	delete(m.byPath, existing.Path)
	delete(m.byID, id)
	return nil
}

type memoryPendingRepository struct {
	mu       sync.RWMutex
	byHandle map[uuid.UUID]*PendingRequest
}

// NewMemoryPendingRequestRepository constructs an in-memory pending request repository.
func NewMemoryPendingRequestRepository() PendingRequestRepository {
	return &memoryPendingRepository{
		byHandle: make(map[uuid.UUID]*PendingRequest),
	}
}

func (m *memoryPendingRepository) Create(_ context.Context, request *PendingRequest) (*PendingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byHandle[request.HandleID]; ok {
		return nil, &domain.ConflictError{
			HandleID:  request.HandleID.String(),
			Pending:   existing.Kind,
			Attempted: request.Kind,
		}
	}
	cloned := cloneRequest(request)
	m.byHandle[cloned.HandleID] = cloned
	return cloneRequest(cloned), nil
}

func (m *memoryPendingRepository) GetByHandle(_ context.Context, handleID uuid.UUID) (*PendingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.byHandle[handleID]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "pending request", Key: handleID.String()}
	}
	return cloneRequest(record), nil
}

func (m *memoryPendingRepository) Update(_ context.Context, request *PendingRequest) (*PendingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byHandle[request.HandleID]
	if !ok || existing.ID != request.ID {
		return nil, &domain.NotFoundError{Resource: "pending request", Key: request.ID.String()}
	}
	cloned := cloneRequest(request)
	m.byHandle[cloned.HandleID] = cloned
	return cloneRequest(cloned), nil
}

func (m *memoryPendingRepository) DeleteByHandle(_ context.Context, handleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHandle[handleID]; !ok {
		return &domain.NotFoundError{Resource: "pending request", Key: handleID.String()}
	}
	delete(m.byHandle, handleID)
	return nil
}

func (m *memoryPendingRepository) List(_ context.Context, filter PendingFilter) ([]*PendingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*PendingRequest, 0, len(m.byHandle))
	for _, record := range m.byHandle {
		if filter.DueBefore != nil && !record.DueBy(*filter.DueBefore) {
			continue
		}
		if len(filter.HandleIDs) > 0 && !slices.Contains(filter.HandleIDs, record.HandleID) {
			continue
		}
		records = append(records, cloneRequest(record))
	}
	sortRequests(records)
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// sortRequests orders immediate requests first, then by fire time.
func sortRequests(records []*PendingRequest) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].FireAt, records[j].FireAt
		switch {
		case a == nil && b == nil:
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		default:
			return a.Before(*b)
		}
	})
}
