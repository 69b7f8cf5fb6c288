package domain

import (
	"strings"

	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// WorkflowState represents the interpreter state persisted on a document handle.
type WorkflowState string

const (
	WorkflowStateIdle            WorkflowState = "idle"
	WorkflowStateRequestAccepted WorkflowState = "request_accepted"
	WorkflowStateDispatching     WorkflowState = "dispatching"
	WorkflowStateFailed          WorkflowState = "failed"
	WorkflowStateArchived        WorkflowState = "archived"
)

// Workflow events understood by the lifecycle state chart.
const (
	EventRequest    = "request"
	EventDispatch   = "dispatch"
	EventComplete   = "complete"
	EventReschedule = "reschedule"
	EventFail       = "fail"
	EventCancel     = "cancel"
	EventArchived   = "archived"
)

// NormalizeWorkflowState coerces arbitrary state strings into a known representation.
func NormalizeWorkflowState(input string) WorkflowState {
	if strings.TrimSpace(input) == "" {
		return WorkflowStateIdle
	}
	return WorkflowState(strings.ToLower(strings.TrimSpace(input)))
}

// Terminal reports whether the state accepts no further commands.
func (s WorkflowState) Terminal() bool {
	return s == WorkflowStateArchived
}

// ToInterface converts the state into the public workflow contract type.
func (s WorkflowState) ToInterface() interfaces.WorkflowState {
	return interfaces.WorkflowState(s)
}

// WorkflowStateFromInterface maps a public workflow state back into the domain type.
func WorkflowStateFromInterface(state interfaces.WorkflowState) WorkflowState {
	return NormalizeWorkflowState(string(state))
}
