package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/looplab/fsm"
)

var (
	// ErrChartStateMissing indicates the definition lacks a state the interpreter drives.
	ErrChartStateMissing = errors.New("workflow: chart lacks a required state")
	// ErrChartEventMissing indicates the definition lacks an event the interpreter fires.
	ErrChartEventMissing = errors.New("workflow: chart lacks a required event")
	// ErrChartTerminalOutgoing indicates a terminal state declares outgoing transitions.
	ErrChartTerminalOutgoing = errors.New("workflow: terminal state declares outgoing transitions")
	// ErrChartArchivedNotTerminal indicates the archived state is not marked terminal.
	ErrChartArchivedNotTerminal = errors.New("workflow: archived state must be terminal")
)

var requiredStates = []domain.WorkflowState{
	domain.WorkflowStateIdle,
	domain.WorkflowStateRequestAccepted,
	domain.WorkflowStateDispatching,
	domain.WorkflowStateFailed,
	domain.WorkflowStateArchived,
}

var requiredEvents = []string{
	domain.EventRequest,
	domain.EventDispatch,
	domain.EventComplete,
	domain.EventReschedule,
	domain.EventFail,
	domain.EventCancel,
	domain.EventArchived,
}

// TransitionObserver is notified after each successful transition.
type TransitionObserver interface {
	Transition(event, from, to string)
}

// Chart is a validated state chart. It holds no per-handle state: every step
// seeds a fresh machine with the persisted state.
type Chart struct {
	definition interfaces.WorkflowDefinition
	events     fsm.Events
	terminal   map[domain.WorkflowState]bool
	logger     interfaces.Logger
	observer   TransitionObserver
}

// NewChart validates definition and prepares the fsm event table.
func NewChart(definition interfaces.WorkflowDefinition, logger interfaces.Logger, observer TransitionObserver) (*Chart, error) {
	if logger == nil {
		logger = logging.NoOp()
	}
	states := make(map[domain.WorkflowState]bool, len(definition.States))
	for _, state := range definition.States {
		states[domain.WorkflowStateFromInterface(state.Name)] = state.Terminal
	}
	for _, required := range requiredStates {
		if _, ok := states[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrChartStateMissing, required)
		}
	}
	if !states[domain.WorkflowStateArchived] {
		return nil, ErrChartArchivedNotTerminal
	}

	names := make(map[string]struct{}, len(definition.Transitions))
	events := make(fsm.Events, 0, len(definition.Transitions))
	for _, transition := range definition.Transitions {
		from := domain.WorkflowStateFromInterface(transition.From)
		if states[from] {
			return nil, fmt.Errorf("%w: %s via %s", ErrChartTerminalOutgoing, from, transition.Name)
		}
		names[transition.Name] = struct{}{}
		events = append(events, fsm.EventDesc{
			Name: transition.Name,
			Src:  []string{string(from)},
			Dst:  string(domain.WorkflowStateFromInterface(transition.To)),
		})
	}
	for _, event := range requiredEvents {
		if _, ok := names[event]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrChartEventMissing, event)
		}
	}

	return &Chart{
		definition: definition,
		events:     events,
		terminal:   states,
		logger:     logger,
		observer:   observer,
	}, nil
}

// Definition returns the compiled definition.
func (c *Chart) Definition() interfaces.WorkflowDefinition { return c.definition }

// Terminal reports whether state accepts no further events.
func (c *Chart) Terminal(state domain.WorkflowState) bool { return c.terminal[state] }

// Can reports whether event is accepted from state.
func (c *Chart) Can(state domain.WorkflowState, event string) bool {
	return c.machine(state, "").Can(event)
}

// Step fires event from state and returns the resulting state.
func (c *Chart) Step(ctx context.Context, handleID string, state domain.WorkflowState, event string) (domain.WorkflowState, error) {
	machine := c.machine(state, handleID)
	if !machine.Can(event) {
		return state, &domain.StateError{HandleID: handleID, State: state, Event: event}
	}
	if err := machine.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return state, err
		}
	}
	next := domain.WorkflowState(machine.Current())
	if c.observer != nil {
		c.observer.Transition(event, string(state), string(next))
	}
	return next, nil
}

func (c *Chart) machine(state domain.WorkflowState, handleID string) *fsm.FSM {
	return fsm.NewFSM(
		string(state),
		c.events,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debug("workflow.state.entered",
					"handle_id", handleID,
					"event", e.Event,
					"from", e.Src,
					"to", e.Dst,
				)
			},
		},
	)
}
