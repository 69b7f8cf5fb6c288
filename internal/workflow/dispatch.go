package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-lifecycle/internal/actions"
	"github.com/goliatone/go-lifecycle/internal/documents"
	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/invocations"
	"github.com/goliatone/go-lifecycle/internal/reporting"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
)

// Trigger is the re-entry point for fired invocations. A fire whose pending
// request is gone, superseded or whose handle is archived is stale and runs
// nothing.
func (i *Interpreter) Trigger(ctx context.Context, fire invocations.Fire) (invocations.Outcome, error) {
	logger := i.logger.WithContext(ctx)
	handleID, err := uuid.Parse(fire.HandleID)
	if err != nil {
		logger.Warn("workflow.trigger.invalid_subject", "invocation_id", fire.InvocationID, "subject", fire.HandleID)
		return invocations.OutcomeStale, nil
	}

	unlock, err := i.lock(ctx, handleID)
	if err != nil {
		return "", err
	}
	defer unlock()

	outcome, err := i.trigger(ctx, handleID, fire)
	if err != nil && !errors.Is(err, domain.ErrActionFailed) && fire.Final() {
		return invocations.OutcomeFailed, i.exhaust(ctx, handleID, fire, err)
	}
	return outcome, err
}

func (i *Interpreter) trigger(ctx context.Context, handleID uuid.UUID, fire invocations.Fire) (invocations.Outcome, error) {
	handle, err := i.handles.GetByID(ctx, handleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return i.stale(fire, "handle missing"), nil
		}
		return "", err
	}
	if handle.Archived || i.chart.Terminal(handle.State) {
		return i.stale(fire, "handle archived"), nil
	}

	request, err := i.pendingFor(ctx, handleID)
	if err != nil {
		return "", err
	}
	if request == nil {
		return i.stale(fire, "no pending request"), nil
	}
	if request.CorrelationID != fire.CorrelationID {
		return i.stale(fire, "correlation mismatch"), nil
	}
	if request.InvocationID != "" && request.InvocationID != fire.InvocationID {
		return i.stale(fire, "invocation superseded"), nil
	}

	if _, err := i.runStage(ctx, handle, request, actions.Args(fire.Args)); err != nil {
		return "", err
	}
	return invocations.OutcomeExecuted, nil
}

// exhaust moves the handle of a fire whose last delivery attempt failed to
// failed, keeping its pending request so Retry or CancelRequest can resolve
// it. The returned error is an ActionFailure unless the handle cannot be
// updated.
func (i *Interpreter) exhaust(ctx context.Context, handleID uuid.UUID, fire invocations.Fire, cause error) error {
	cause = fmt.Errorf("delivery failed after %d attempts: %w", fire.Attempt, cause)
	i.reporter.Report(ctx, interfaces.Fault{
		Kind:     reporting.KindDeliveryExhausted,
		HandleID: fire.HandleID,
		Action:   fire.Action,
		Err:      cause,
	})

	handle, err := i.handles.GetByID(ctx, handleID)
	if err != nil {
		return errors.Join(cause, err)
	}
	if handle.Archived || i.chart.Terminal(handle.State) {
		return cause
	}
	request, err := i.pendingFor(ctx, handleID)
	if err != nil {
		return errors.Join(cause, err)
	}
	if request == nil || request.CorrelationID != fire.CorrelationID {
		return cause
	}
	if request.InvocationID != "" && request.InvocationID != fire.InvocationID {
		return cause
	}
	if handle.State == domain.WorkflowStateFailed {
		return asFailure(fire.Action, handle, cause)
	}
	dispatching, err := i.chart.Step(ctx, handleID.String(), handle.State, domain.EventDispatch)
	if err != nil {
		return errors.Join(cause, err)
	}
	working := handle.Clone()
	working.State = dispatching
	_, err = i.failHandle(ctx, working, fire.Action, cause)
	return err
}

func (i *Interpreter) stale(fire invocations.Fire, reason string) invocations.Outcome {
	i.logger.Debug("workflow.trigger.stale",
		"invocation_id", fire.InvocationID,
		"handle_id", fire.HandleID,
		"correlation_id", fire.CorrelationID,
		"reason", reason,
	)
	return invocations.OutcomeStale
}

// runStage executes the current stage of request and consumes or narrows it.
func (i *Interpreter) runStage(ctx context.Context, handle *documents.Handle, request *documents.PendingRequest, args actions.Args) (Result, error) {
	updated, err := i.dispatch(ctx, handle, request.Action(), args, request.CorrelationID)
	if err != nil {
		return resultFor(updated), err
	}

	if request.Kind == domain.RequestPublishAndDepublish && request.Stage == domain.StagePublish {
		return i.narrow(ctx, updated, request)
	}

	saved, err := i.finish(ctx, updated, domain.EventComplete)
	if err != nil {
		return resultFor(updated), err
	}
	if err := i.requests.DeleteByHandle(ctx, handle.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return resultFor(saved), err
	}
	return resultFor(saved), nil
}

// narrow moves a publish-and-depublish request onto its depublish stage after
// the publish stage ran. The new stage gets a fresh correlation id so fires of
// the consumed stage are stale.
func (i *Interpreter) narrow(ctx context.Context, handle *documents.Handle, request *documents.PendingRequest) (Result, error) {
	now := i.now()
	next := request.Clone()
	next.Stage = domain.StageDepublish
	next.CorrelationID = i.id().String()
	next.InvocationID = ""
	next.UpdatedAt = now

	if next.DepublishAt == nil || !next.DepublishAt.After(now) {
		next.FireAt = nil
		if _, err := i.requests.Update(ctx, next); err != nil {
			return i.markFailed(ctx, handle, actions.Publish, fmt.Errorf("narrow request: %w", err))
		}
		saved, err := i.finish(ctx, handle, domain.EventComplete)
		if err != nil {
			return resultFor(handle), err
		}
		return i.runStage(ctx, saved, next, nil)
	}

	fireAt := next.DepublishAt.UTC()
	invocationID, err := i.invocations.Schedule(ctx, invocations.Spec{
		Subject:       handle.ID.String(),
		Action:        actions.Depublish,
		FireAt:        fireAt,
		CorrelationID: next.CorrelationID,
		MaxAttempts:   i.maxAttempts,
	})
	if err != nil {
		return i.markFailed(ctx, handle, actions.Publish, fmt.Errorf("schedule depublish: %w", err))
	}
	next.InvocationID = invocationID
	next.FireAt = &fireAt
	if _, err := i.requests.Update(ctx, next); err != nil {
		_ = i.invocations.Discard(ctx, invocationID)
		return i.markFailed(ctx, handle, actions.Publish, fmt.Errorf("narrow request: %w", err))
	}

	saved, err := i.finish(ctx, handle, domain.EventReschedule)
	if err != nil {
		return resultFor(handle), err
	}
	result := resultFor(saved)
	result.InvocationID = invocationID
	i.handleLogger(saved, next.CorrelationID, actions.Depublish).Info("workflow.request.narrowed", "invocation_id", invocationID, "fire_at", fireAt)
	return result, nil
}

// dispatch runs action in its own session. On success the returned handle is
// in the dispatching state and not yet persisted. On failure the handle is
// persisted as failed with its variants unchanged.
func (i *Interpreter) dispatch(ctx context.Context, handle *documents.Handle, action string, args actions.Args, correlationID string) (*documents.Handle, error) {
	logger := i.handleLogger(handle, correlationID, action)
	dispatching, err := i.chart.Step(ctx, handle.ID.String(), handle.State, domain.EventDispatch)
	if err != nil {
		return handle, err
	}

	session, err := i.openSession(ctx)
	if err != nil {
		return handle, err
	}

	updated, runErr := i.registry.Run(ctx, action, i.env(session, logger), handle, args)
	if runErr == nil {
		if err := session.Commit(ctx); err != nil {
			runErr = fmt.Errorf("commit session: %w", err)
		}
	}
	if runErr != nil {
		if err := session.Rollback(ctx); err != nil {
			logger.Debug("workflow.session.rollback_failed", "error", err)
		}
		i.observeAction(action, false)
		working := handle.Clone()
		working.State = dispatching
		return i.failHandle(ctx, working, action, runErr)
	}

	i.observeAction(action, true)
	updated.State = dispatching
	updated.LastError = ""
	logger.Info("workflow.action.completed")
	return updated, nil
}

func (i *Interpreter) finish(ctx context.Context, handle *documents.Handle, event string) (*documents.Handle, error) {
	state, err := i.chart.Step(ctx, handle.ID.String(), handle.State, event)
	if err != nil {
		return nil, err
	}
	return i.save(ctx, handle, state)
}

func (i *Interpreter) markFailed(ctx context.Context, handle *documents.Handle, action string, cause error) (Result, error) {
	failed, err := i.failHandle(ctx, handle, action, cause)
	return resultFor(failed), err
}

// failHandle moves a dispatching handle to failed and returns the failure.
func (i *Interpreter) failHandle(ctx context.Context, handle *documents.Handle, action string, cause error) (*documents.Handle, error) {
	failure := asFailure(action, handle, cause)
	state, err := i.chart.Step(ctx, handle.ID.String(), handle.State, domain.EventFail)
	if err != nil {
		return handle, errors.Join(failure, err)
	}
	handle.LastAction = action
	handle.LastError = failure.Error()
	saved, err := i.save(ctx, handle, state)
	if err != nil {
		return handle, errors.Join(failure, err)
	}
	i.handleLogger(saved, "", action).Warn("workflow.action.failed", "error", failure.Err)
	return saved, failure
}

func asFailure(action string, handle *documents.Handle, err error) *domain.ActionFailure {
	var failure *domain.ActionFailure
	if errors.As(err, &failure) {
		return failure
	}
	return &domain.ActionFailure{Action: action, HandleID: handle.ID.String(), Err: err}
}
