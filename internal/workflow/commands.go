package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-lifecycle/internal/actions"
	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/invocations"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
)

// CreateHandleInput registers a document and its existing variant nodes.
type CreateHandleInput struct {
	Path        string
	Draft       string
	Unpublished string
	Published   string
}

// RequestInput asks for a publish or depublish. A nil or past When runs immediately.
type RequestInput struct {
	HandleID    uuid.UUID
	When        *time.Time
	RequestedBy uuid.UUID
}

// WindowInput asks for a publish followed by a depublish.
type WindowInput struct {
	HandleID    uuid.UUID
	PublishAt   *time.Time
	DepublishAt time.Time
	RequestedBy uuid.UUID
}

// CreateHandle registers a new handle in the idle state. Every referenced node
// must resolve in the content store.
func (i *Interpreter) CreateHandle(ctx context.Context, input CreateHandleInput) (*documents.Handle, error) {
	now := i.now()
	handle := &documents.Handle{
		ID:        i.id(),
		Path:      input.Path,
		State:     domain.NormalizeWorkflowState(string(i.chart.Definition().InitialState)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	refs := map[domain.VariantKind]string{
		domain.VariantDraft:       input.Draft,
		domain.VariantUnpublished: input.Unpublished,
		domain.VariantPublished:   input.Published,
	}
	for _, kind := range []domain.VariantKind{domain.VariantDraft, domain.VariantUnpublished, domain.VariantPublished} {
		if err := handle.SetVariant(kind, refs[kind]); err != nil {
			return nil, err
		}
	}
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	if err := i.verifyNodes(ctx, handle); err != nil {
		return nil, err
	}
	created, err := i.handles.Create(ctx, handle)
	if err != nil {
		return nil, err
	}
	i.handleLogger(created, "", "").Info("workflow.handle.created", "path", created.Path)
	return created, nil
}

func (i *Interpreter) verifyNodes(ctx context.Context, handle *documents.Handle) error {
	session, err := i.openSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = session.Rollback(ctx) }()
	for _, ref := range []*documents.VariantRef{handle.Draft, handle.Unpublished, handle.Published} {
		if ref == nil {
			continue
		}
		if _, err := session.Resolve(ctx, ref.Path); err != nil {
			if errors.Is(err, interfaces.ErrNodeNotFound) {
				return &domain.NotFoundError{Resource: "variant node", Key: ref.Path}
			}
			return err
		}
	}
	return nil
}

// Get returns the stored handle.
func (i *Interpreter) Get(ctx context.Context, handleID uuid.UUID) (*documents.Handle, error) {
	return i.handles.GetByID(ctx, handleID)
}

// Pending returns the pending request of a handle, or nil.
func (i *Interpreter) Pending(ctx context.Context, handleID uuid.UUID) (*documents.PendingRequest, error) {
	return i.pendingFor(ctx, handleID)
}

// RequestPublication asks for the unpublished variant to be published.
func (i *Interpreter) RequestPublication(ctx context.Context, input RequestInput) (Result, error) {
	return i.request(ctx, requestPlan{
		handleID:    input.HandleID,
		kind:        domain.RequestPublish,
		stage:       domain.StagePublish,
		publishAt:   input.When,
		fireAt:      input.When,
		requestedBy: input.RequestedBy,
	})
}

// RequestDepublication asks for the published variant to be removed.
func (i *Interpreter) RequestDepublication(ctx context.Context, input RequestInput) (Result, error) {
	return i.request(ctx, requestPlan{
		handleID:    input.HandleID,
		kind:        domain.RequestDepublish,
		stage:       domain.StageDepublish,
		depublishAt: input.When,
		fireAt:      input.When,
		requestedBy: input.RequestedBy,
	})
}

// RequestPublicationWindow asks for a publish now or at PublishAt followed by
// a depublish at DepublishAt.
func (i *Interpreter) RequestPublicationWindow(ctx context.Context, input WindowInput) (Result, error) {
	now := i.now()
	start := now
	if input.PublishAt != nil && input.PublishAt.After(now) {
		start = *input.PublishAt
	}
	if input.DepublishAt.IsZero() {
		return Result{}, &domain.InvalidScheduleError{Now: now, Reason: "depublish time is required"}
	}
	if !input.DepublishAt.After(start) {
		return Result{}, &domain.InvalidScheduleError{FireAt: input.DepublishAt, Now: start, Reason: "depublish time must be after the publish time"}
	}
	depublishAt := input.DepublishAt
	return i.request(ctx, requestPlan{
		handleID:    input.HandleID,
		kind:        domain.RequestPublishAndDepublish,
		stage:       domain.StagePublish,
		publishAt:   input.PublishAt,
		depublishAt: &depublishAt,
		fireAt:      input.PublishAt,
		requestedBy: input.RequestedBy,
	})
}

type requestPlan struct {
	handleID    uuid.UUID
	kind        domain.RequestKind
	stage       domain.RequestStage
	publishAt   *time.Time
	depublishAt *time.Time
	fireAt      *time.Time
	requestedBy uuid.UUID
}

func (i *Interpreter) request(ctx context.Context, plan requestPlan) (Result, error) {
	unlock, err := i.lock(ctx, plan.handleID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	handle, err := i.loadActive(ctx, plan.handleID)
	if err != nil {
		return Result{}, err
	}
	existing, err := i.pendingFor(ctx, plan.handleID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return resultFor(handle), &domain.ConflictError{HandleID: plan.handleID.String(), Pending: existing.Kind, Attempted: plan.kind}
	}

	if !i.chart.Can(handle.State, domain.EventRequest) {
		return resultFor(handle), &domain.StateError{HandleID: plan.handleID.String(), State: handle.State, Event: domain.EventRequest}
	}
	now := i.now()
	immediate := plan.fireAt == nil || !plan.fireAt.After(now)

	request := &documents.PendingRequest{
		ID:            i.id(),
		HandleID:      plan.handleID,
		Kind:          plan.kind,
		Stage:         plan.stage,
		PublishAt:     utc(plan.publishAt),
		DepublishAt:   utc(plan.depublishAt),
		RequestedBy:   plan.requestedBy,
		CorrelationID: i.id().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var spec invocations.Spec
	if !immediate {
		request.FireAt = utc(plan.fireAt)
		spec = invocations.Spec{
			Subject:       handle.ID.String(),
			Action:        request.Action(),
			FireAt:        *request.FireAt,
			CorrelationID: request.CorrelationID,
			MaxAttempts:   i.maxAttempts,
		}
		if err := i.invocations.Validate(spec); err != nil {
			return resultFor(handle), err
		}
	}
	created, err := i.requests.Create(ctx, request)
	if err != nil {
		return resultFor(handle), err
	}

	logger := i.handleLogger(handle, created.CorrelationID, created.Action())
	if immediate {
		logger.Info("workflow.request.dispatching", "kind", created.Kind)
		return i.runStage(ctx, handle, created, nil)
	}

	invocationID, err := i.invocations.Schedule(ctx, spec)
	if err != nil {
		if delErr := i.requests.DeleteByHandle(ctx, handle.ID); delErr != nil {
			logger.Error("workflow.request.rollback_failed", "error", delErr)
		}
		return resultFor(handle), err
	}
	created.InvocationID = invocationID
	if _, err := i.requests.Update(ctx, created); err != nil {
		_ = i.invocations.Discard(ctx, invocationID)
		_ = i.requests.DeleteByHandle(ctx, handle.ID)
		return resultFor(handle), err
	}

	saved, err := i.finish(ctx, handle, domain.EventRequest)
	if err != nil {
		return resultFor(handle), err
	}
	logger.Info("workflow.request.accepted", "kind", created.Kind, "invocation_id", invocationID, "fire_at", *created.FireAt)
	result := resultFor(saved)
	result.InvocationID = invocationID
	return result, nil
}

// CancelRequest removes the pending request and its invocation and returns
// the handle to idle. A failed handle without a request is reset to idle.
func (i *Interpreter) CancelRequest(ctx context.Context, handleID uuid.UUID) (Result, error) {
	unlock, err := i.lock(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	handle, err := i.loadActive(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	request, err := i.pendingFor(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	if request == nil && handle.State != domain.WorkflowStateFailed {
		return resultFor(handle), &domain.NotFoundError{Resource: "pending request", Key: handleID.String()}
	}

	if request != nil {
		if err := i.dropInvocation(ctx, request.InvocationID); err != nil {
			return resultFor(handle), err
		}
		if err := i.requests.DeleteByHandle(ctx, handleID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return resultFor(handle), err
		}
	}

	updated, err := i.registry.Run(ctx, actions.CancelRequest, i.env(nil, i.logger), handle, nil)
	if err != nil {
		return resultFor(handle), err
	}
	state := domain.WorkflowStateIdle
	if i.chart.Can(updated.State, domain.EventCancel) {
		if state, err = i.chart.Step(ctx, handleID.String(), updated.State, domain.EventCancel); err != nil {
			return resultFor(handle), err
		}
	}
	updated.LastError = ""
	saved, err := i.save(ctx, updated, state)
	if err != nil {
		return resultFor(handle), err
	}
	i.handleLogger(saved, "", actions.CancelRequest).Info("workflow.request.cancelled")
	return resultFor(saved), nil
}

// dropInvocation cancels a pending invocation, or deletes it when it already
// left pending (failed or claimed by a concurrent fire).
func (i *Interpreter) dropInvocation(ctx context.Context, invocationID string) error {
	if invocationID == "" {
		return nil
	}
	err := i.invocations.Cancel(ctx, invocationID)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return i.invocations.Discard(ctx, invocationID)
	}
	return err
}

// Archive runs the archive action and, once it succeeds, cancels any pending
// request. A failed archive keeps the request and its invocation. A handle left
// with no retained variant is purged.
func (i *Interpreter) Archive(ctx context.Context, handleID uuid.UUID) (Result, error) {
	unlock, err := i.lock(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	handle, err := i.loadActive(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	if !i.chart.Can(handle.State, domain.EventDispatch) {
		return resultFor(handle), &domain.StateError{HandleID: handleID.String(), State: handle.State, Event: actions.Archive}
	}
	request, err := i.pendingFor(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	return i.archive(ctx, handle, request)
}

func (i *Interpreter) archive(ctx context.Context, handle *documents.Handle, request *documents.PendingRequest) (Result, error) {
	updated, err := i.dispatch(ctx, handle, actions.Archive, nil, "")
	if err != nil {
		return resultFor(updated), err
	}
	state, err := i.chart.Step(ctx, handle.ID.String(), updated.State, domain.EventArchived)
	if err != nil {
		return resultFor(updated), err
	}
	logger := i.handleLogger(updated, "", actions.Archive)

	var result Result
	if !updated.Retains() {
		if err := i.handles.Delete(ctx, handle.ID); err != nil {
			return resultFor(updated), err
		}
		updated.State = state
		logger.Info("workflow.handle.purged")
		result = Result{Handle: updated, State: state, Purged: true}
	} else {
		saved, err := i.save(ctx, updated, state)
		if err != nil {
			return resultFor(updated), err
		}
		logger.Info("workflow.handle.archived")
		result = resultFor(saved)
	}

	if request != nil {
		if err := i.dropInvocation(ctx, request.InvocationID); err != nil {
			return result, err
		}
		if err := i.requests.DeleteByHandle(ctx, handle.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return result, err
		}
		logger.Info("workflow.request.cancelled", "correlation_id", request.CorrelationID)
	}
	return result, nil
}

// Retry re-runs the failed stage of a failed handle.
func (i *Interpreter) Retry(ctx context.Context, handleID uuid.UUID) (Result, error) {
	unlock, err := i.lock(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	handle, err := i.loadActive(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	if handle.State != domain.WorkflowStateFailed {
		return resultFor(handle), &domain.StateError{HandleID: handleID.String(), State: handle.State, Event: "retry"}
	}
	request, err := i.pendingFor(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	if handle.LastAction == actions.Archive {
		return i.archive(ctx, handle, request)
	}
	if request == nil {
		return resultFor(handle), &domain.NotFoundError{Resource: "pending request", Key: handleID.String()}
	}

	if request.InvocationID != "" {
		if err := i.invocations.Discard(ctx, request.InvocationID); err != nil {
			return resultFor(handle), err
		}
		request.InvocationID = ""
		request.UpdatedAt = i.now()
		if request, err = i.requests.Update(ctx, request); err != nil {
			return resultFor(handle), err
		}
	}
	i.handleLogger(handle, request.CorrelationID, request.Action()).Info("workflow.request.retrying")
	return i.runStage(ctx, handle, request, nil)
}

// Restore copies a retained node into the unpublished slot of an idle handle.
func (i *Interpreter) Restore(ctx context.Context, handleID uuid.UUID, source string) (Result, error) {
	unlock, err := i.lock(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	handle, err := i.loadActive(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	if handle.State != domain.WorkflowStateIdle {
		return resultFor(handle), &domain.StateError{HandleID: handleID.String(), State: handle.State, Event: actions.Restore}
	}
	request, err := i.pendingFor(ctx, handleID)
	if err != nil {
		return Result{}, err
	}
	if request != nil {
		return resultFor(handle), &domain.ConflictError{HandleID: handleID.String(), Pending: request.Kind, Reason: "restore is not allowed while a request is pending"}
	}

	updated, err := i.dispatch(ctx, handle, actions.Restore, actions.Args{"source": source}, "")
	if err != nil {
		return resultFor(updated), err
	}
	saved, err := i.finish(ctx, updated, domain.EventComplete)
	if err != nil {
		return resultFor(updated), err
	}
	return resultFor(saved), nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}
