package commands

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-lifecycle/internal/domain"
)

const (
	commandValidationCode   = "COMMAND_VALIDATION_FAILED"
	commandContextCanceled  = "COMMAND_CONTEXT_CANCELED"
	commandContextTimeout   = "COMMAND_CONTEXT_TIMEOUT"
	commandContextErrorCode = "COMMAND_CONTEXT_ERROR"
	commandExecuteFailed    = "COMMAND_EXECUTION_FAILED"

	lifecycleConflict          = "LIFECYCLE_CONFLICT"
	lifecycleInvalidSchedule   = "LIFECYCLE_INVALID_SCHEDULE"
	lifecycleNotFound          = "LIFECYCLE_NOT_FOUND"
	lifecycleTerminalState     = "LIFECYCLE_TERMINAL_STATE"
	lifecycleInvalidTransition = "LIFECYCLE_INVALID_TRANSITION"
	lifecycleUnknownAction     = "LIFECYCLE_UNKNOWN_ACTION"
	lifecycleActionFailed      = "LIFECYCLE_ACTION_FAILED"
)

// WrapValidationError tags message validation failures.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "command validation failed").
		WithTextCode(commandValidationCode)
}

// WrapContextError tags cancellation and deadline errors.
func WrapContextError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command execution cancelled").
			WithTextCode(commandContextCanceled)
	case errors.Is(err, context.DeadlineExceeded):
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command execution deadline exceeded").
			WithTextCode(commandContextTimeout)
	default:
		return goerrors.Wrap(err, goerrors.CategoryCommand, "command context error").
			WithTextCode(commandContextErrorCode)
	}
}

// WrapExecuteError tags errors raised by the lifecycle runtime. Rejections
// that leave state untouched are validation errors; everything else is a
// command error.
func WrapExecuteError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	code := lifecycleCode(err)
	if domain.IsValidation(err) {
		return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).WithTextCode(code)
	}
	if code == lifecycleActionFailed {
		return goerrors.Wrap(err, goerrors.CategoryCommand, err.Error()).WithTextCode(code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapContextError(err)
	}
	return goerrors.Wrap(err, goerrors.CategoryCommand, "command execution failed").
		WithTextCode(commandExecuteFailed)
}

func lifecycleCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return lifecycleConflict
	case errors.Is(err, domain.ErrInvalidSchedule):
		return lifecycleInvalidSchedule
	case errors.Is(err, domain.ErrNotFound):
		return lifecycleNotFound
	case errors.Is(err, domain.ErrTerminalState):
		return lifecycleTerminalState
	case errors.Is(err, domain.ErrInvalidTransition):
		return lifecycleInvalidTransition
	case errors.Is(err, domain.ErrUnknownAction):
		return lifecycleUnknownAction
	case errors.Is(err, domain.ErrActionFailed):
		return lifecycleActionFailed
	default:
		return ""
	}
}
