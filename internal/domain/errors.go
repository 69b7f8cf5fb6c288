package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict matches any ConflictError.
	ErrConflict = errors.New("lifecycle: conflicting pending request")
	// ErrInvalidSchedule matches any InvalidScheduleError.
	ErrInvalidSchedule = errors.New("lifecycle: invalid schedule")
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("lifecycle: not found")
	// ErrActionFailed matches any ActionFailure.
	ErrActionFailed = errors.New("lifecycle: action failed")
	// ErrCollaboratorUnavailable signals that an optional collaborator could not be used.
	ErrCollaboratorUnavailable = errors.New("lifecycle: optional collaborator unavailable")
	// ErrTerminalState matches any TerminalStateError.
	ErrTerminalState = errors.New("lifecycle: handle is in a terminal state")
	// ErrInvalidTransition matches any StateError.
	ErrInvalidTransition = errors.New("lifecycle: transition not allowed")
	// ErrUnknownAction reports an action name missing from the registry.
	ErrUnknownAction = errors.New("lifecycle: unknown action")
)

// ConflictError reports an attempt to create a second pending request for a handle.
type ConflictError struct {
	HandleID  string
	Pending   RequestKind
	Attempted RequestKind
	Reason    string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conflict on %s: %s", e.HandleID, e.Reason)
	}
	if e.Attempted == "" {
		return fmt.Sprintf("handle %s already has a pending %s request", e.HandleID, e.Pending)
	}
	return fmt.Sprintf("cannot accept %s request: handle %s already has a pending %s request", e.Attempted, e.HandleID, e.Pending)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidScheduleError reports a fire time that is not strictly in the future.
type InvalidScheduleError struct {
	FireAt time.Time
	Now    time.Time
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	if e.Reason != "" {
		return "invalid schedule: " + e.Reason
	}
	return fmt.Sprintf("invalid schedule: fire time %s is not after %s", e.FireAt.UTC().Format(time.RFC3339), e.Now.UTC().Format(time.RFC3339))
}

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

// NotFoundError represents missing handles, requests or invocations.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ActionFailure is the fatal outcome of an action. The handle moves to failed
// and keeps its pending request.
type ActionFailure struct {
	Action   string
	HandleID string
	Err      error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("action %s failed for handle %s: %v", e.Action, e.HandleID, e.Err)
}

func (e *ActionFailure) Unwrap() error { return e.Err }

func (e *ActionFailure) Is(target error) bool { return target == ErrActionFailed }

// OptionalCollaboratorMissing is reported, never returned, when an auxiliary
// step could not run.
type OptionalCollaboratorMissing struct {
	Collaborator string
	Action       string
	Err          error
}

func (e *OptionalCollaboratorMissing) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("optional collaborator %q unavailable for %s", e.Collaborator, e.Action)
	}
	return fmt.Sprintf("optional collaborator %q unavailable for %s: %v", e.Collaborator, e.Action, e.Err)
}

func (e *OptionalCollaboratorMissing) Unwrap() error { return e.Err }

func (e *OptionalCollaboratorMissing) Is(target error) bool {
	return target == ErrCollaboratorUnavailable
}

// TerminalStateError reports a command against an archived handle.
type TerminalStateError struct {
	HandleID string
	State    WorkflowState
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("handle %s is %s and accepts no further commands", e.HandleID, e.State)
}

func (e *TerminalStateError) Is(target error) bool { return target == ErrTerminalState }

// StateError reports an event the current state does not accept.
type StateError struct {
	HandleID string
	State    WorkflowState
	Event    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("handle %s cannot %s while %s", e.HandleID, e.Event, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidTransition }

// IsValidation reports errors that are rejected before any mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnknownAction)
}
