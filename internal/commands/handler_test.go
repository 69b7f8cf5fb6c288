package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lifecycle/internal/domain"
)

type testMessage struct{}

func (testMessage) Type() string { return "lifecycle.test.message" }

func (testMessage) Validate() error { return nil }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "lifecycle.test.invalid" }

func (invalidMessage) Validate() error { return errors.New("invalid") }

type outcomeRecorder struct {
	outcomes map[string]int
}

func (r *outcomeRecorder) CommandOutcome(command, status string) {
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[command+":"+status]++
}

func TestHandlerExecuteSuccess(t *testing.T) {
	called := false
	h := NewHandler[testMessage](func(ctx context.Context, msg testMessage) error {
		called = true
		return nil
	})

	if err := h.Execute(context.Background(), testMessage{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !called {
		t.Fatal("expected handler to be invoked")
	}
}

func TestHandlerValidationShortCircuitsExecution(t *testing.T) {
	called := false
	h := NewHandler[invalidMessage](func(ctx context.Context, msg invalidMessage) error {
		called = true
		return nil
	})

	err := h.Execute(context.Background(), invalidMessage{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryValidation) {
		t.Fatalf("expected validation category, got %v", err)
	}
	if called {
		t.Fatal("expected handler not to run when validation fails")
	}
}

func TestHandlerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	h := NewHandler[testMessage](func(ctx context.Context, msg testMessage) error {
		called = true
		return nil
	})

	err := h.Execute(ctx, testMessage{})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryCommand) {
		t.Fatalf("expected command category, got %v", err)
	}
	if called {
		t.Fatal("expected handler not to run when context is cancelled")
	}
}

func TestHandlerWrapsExecutionError(t *testing.T) {
	h := NewHandler[testMessage](func(ctx context.Context, msg testMessage) error {
		return errors.New("boom")
	})

	err := h.Execute(context.Background(), testMessage{})
	if err == nil {
		t.Fatal("expected wrapped execution error")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryCommand) {
		t.Fatalf("expected command category, got %v", err)
	}
}

func TestHandlerClassifiesLifecycleErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		validation bool
		code       string
	}{
		{"conflict", &domain.ConflictError{HandleID: "h", Pending: domain.RequestPublish}, true, lifecycleConflict},
		{"schedule", &domain.InvalidScheduleError{Reason: "depublish precedes publish"}, true, lifecycleInvalidSchedule},
		{"not found", &domain.NotFoundError{Resource: "handle", Key: "h"}, true, lifecycleNotFound},
		{"terminal", &domain.TerminalStateError{HandleID: "h", State: domain.WorkflowStateArchived}, true, lifecycleTerminalState},
		{"transition", &domain.StateError{HandleID: "h", State: domain.WorkflowStateFailed, Event: "restore"}, true, lifecycleInvalidTransition},
		{"unknown action", fmt.Errorf("%w: %q", domain.ErrUnknownAction, "promote"), true, lifecycleUnknownAction},
		{"action", &domain.ActionFailure{Action: "publish", HandleID: "h", Err: errors.New("copy")}, false, lifecycleActionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lifecycleCode(tc.err); got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
			h := NewHandler[testMessage](func(context.Context, testMessage) error { return tc.err })
			err := h.Execute(context.Background(), testMessage{})
			if domain.IsValidation(tc.err) != tc.validation {
				t.Fatalf("expected IsValidation %v for %v", tc.validation, tc.err)
			}
			if tc.validation && !goerrors.IsCategory(err, goerrors.CategoryValidation) {
				t.Fatalf("expected validation category, got %v", err)
			}
			if !tc.validation && !goerrors.IsCategory(err, goerrors.CategoryCommand) {
				t.Fatalf("expected command category, got %v", err)
			}
		})
	}
}

func TestHandlerHonoursTimeoutOption(t *testing.T) {
	h := NewHandler[testMessage](func(ctx context.Context, msg testMessage) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	}, WithTimeout[testMessage](10*time.Millisecond))

	err := h.Execute(context.Background(), testMessage{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !goerrors.IsCategory(err, goerrors.CategoryCommand) {
		t.Fatalf("expected command category for timeout, got %v", err)
	}
}

func TestHandlerReportsOutcomesToObserver(t *testing.T) {
	recorder := &outcomeRecorder{}
	fail := false
	h := NewHandler[testMessage](func(context.Context, testMessage) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}, WithTelemetry(ObservedTelemetry[testMessage](nil, recorder)))

	_ = h.Execute(context.Background(), testMessage{})
	fail = true
	_ = h.Execute(context.Background(), testMessage{})

	if recorder.outcomes["lifecycle.test.message:success"] != 1 || recorder.outcomes["lifecycle.test.message:failed"] != 1 {
		t.Fatalf("unexpected outcomes %v", recorder.outcomes)
	}
}
