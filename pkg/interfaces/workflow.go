package interfaces

// WorkflowState represents a lifecycle stage understood by the interpreter.
type WorkflowState string

// WorkflowDefinition describes the state chart driving document handles.
type WorkflowDefinition struct {
	Name         string
	InitialState WorkflowState
	States       []WorkflowStateDefinition
	Transitions  []WorkflowTransition
}

// WorkflowStateDefinition documents a workflow state.
type WorkflowStateDefinition struct {
	Name        WorkflowState
	Description string
	Terminal    bool
}

// WorkflowTransition declares an allowed event between two states.
type WorkflowTransition struct {
	Name        string
	Description string
	From        WorkflowState
	To          WorkflowState
}
