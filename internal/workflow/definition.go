package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/runtimeconfig"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

const defaultDefinitionName = "document-lifecycle"

var (
	// ErrDefinitionStatesRequired indicates the workflow definition does not declare any states.
	ErrDefinitionStatesRequired = errors.New("workflow: definition requires at least one state")
	// ErrStateNameRequired indicates a workflow state is missing its name.
	ErrStateNameRequired = errors.New("workflow: state name required")
	// ErrDuplicateState indicates duplicate workflow state names were declared.
	ErrDuplicateState = errors.New("workflow: duplicate state")
	// ErrTransitionNameRequired indicates a transition lacks a name.
	ErrTransitionNameRequired = errors.New("workflow: transition name required")
	// ErrTransitionStateUnknown indicates a transition references a state that was not declared.
	ErrTransitionStateUnknown = errors.New("workflow: transition references unknown state")
	// ErrDuplicateTransition indicates the same transition name is declared multiple times for a state.
	ErrDuplicateTransition = errors.New("workflow: duplicate transition for state")
	// ErrInitialStateInvalid indicates the supplied initial state flag is inconsistent or unknown.
	ErrInitialStateInvalid = errors.New("workflow: invalid initial state")
)

// DefaultWorkflowConfig returns the built-in document lifecycle chart.
func DefaultWorkflowConfig() runtimeconfig.WorkflowConfig {
	return runtimeconfig.WorkflowConfig{
		Name: defaultDefinitionName,
		States: []runtimeconfig.WorkflowStateConfig{
			{Name: string(domain.WorkflowStateIdle), Description: "No pending request", Initial: true},
			{Name: string(domain.WorkflowStateRequestAccepted), Description: "A request waits for its scheduled invocation"},
			{Name: string(domain.WorkflowStateDispatching), Description: "An action is running"},
			{Name: string(domain.WorkflowStateFailed), Description: "The last action raised a failure"},
			{Name: string(domain.WorkflowStateArchived), Description: "Archived, accepts no commands", Terminal: true},
		},
		Transitions: []runtimeconfig.WorkflowTransitionConfig{
			{Name: domain.EventRequest, From: "idle", To: "request_accepted"},
			{Name: domain.EventDispatch, From: "idle", To: "dispatching"},
			{Name: domain.EventDispatch, From: "request_accepted", To: "dispatching"},
			{Name: domain.EventDispatch, From: "failed", To: "dispatching"},
			{Name: domain.EventComplete, From: "dispatching", To: "idle"},
			{Name: domain.EventReschedule, From: "dispatching", To: "request_accepted"},
			{Name: domain.EventFail, From: "dispatching", To: "failed"},
			{Name: domain.EventCancel, From: "request_accepted", To: "idle"},
			{Name: domain.EventCancel, From: "failed", To: "idle"},
			{Name: domain.EventArchived, From: "dispatching", To: "archived"},
		},
	}
}

// DefaultDefinition compiles DefaultWorkflowConfig.
func DefaultDefinition() interfaces.WorkflowDefinition {
	definition, err := CompileDefinition(DefaultWorkflowConfig())
	if err != nil {
		panic(err)
	}
	return definition
}

// CompileDefinition converts configuration into a runtime definition. An empty
// configuration yields the built-in chart.
func CompileDefinition(cfg runtimeconfig.WorkflowConfig) (interfaces.WorkflowDefinition, error) {
	if len(cfg.States) == 0 && len(cfg.Transitions) == 0 {
		cfg = DefaultWorkflowConfig()
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = defaultDefinitionName
	}

	if len(cfg.States) == 0 {
		return interfaces.WorkflowDefinition{}, fmt.Errorf("%w: %s", ErrDefinitionStatesRequired, name)
	}

	stateMap, stateDefs, initialState, err := compileStates(cfg.States)
	if err != nil {
		return interfaces.WorkflowDefinition{}, err
	}

	transitions, err := compileTransitions(cfg.Transitions, stateMap)
	if err != nil {
		return interfaces.WorkflowDefinition{}, err
	}

	return interfaces.WorkflowDefinition{
		Name:         name,
		InitialState: interfaces.WorkflowState(initialState),
		States:       stateDefs,
		Transitions:  transitions,
	}, nil
}

type compiledState struct {
	name        interfaces.WorkflowState
	description string
	terminal    bool
}

func compileStates(configs []runtimeconfig.WorkflowStateConfig) (map[string]compiledState, []interfaces.WorkflowStateDefinition, string, error) {
	result := make(map[string]compiledState, len(configs))
	ordered := make([]interfaces.WorkflowStateDefinition, 0, len(configs))
	var initial interfaces.WorkflowState
	var initialDeclared bool

	for idx, cfg := range configs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return nil, nil, "", fmt.Errorf("%w at index %d", ErrStateNameRequired, idx)
		}
		normalized := domain.NormalizeWorkflowState(name).ToInterface()
		key := string(normalized)
		if _, exists := result[key]; exists {
			return nil, nil, "", fmt.Errorf("%w: %s", ErrDuplicateState, key)
		}
		if cfg.Initial {
			if initialDeclared {
				return nil, nil, "", ErrInitialStateInvalid
			}
			initial = normalized
			initialDeclared = true
		}
		result[key] = compiledState{
			name:        normalized,
			description: strings.TrimSpace(cfg.Description),
			terminal:    cfg.Terminal,
		}
		ordered = append(ordered, interfaces.WorkflowStateDefinition{
			Name:        normalized,
			Description: strings.TrimSpace(cfg.Description),
			Terminal:    cfg.Terminal,
		})
	}

	if !initialDeclared {
		initial = domain.NormalizeWorkflowState(configs[0].Name).ToInterface()
	}
	if result[string(initial)].terminal {
		return nil, nil, "", fmt.Errorf("%w: %s is terminal", ErrInitialStateInvalid, initial)
	}

	return result, ordered, string(initial), nil
}

func compileTransitions(configs []runtimeconfig.WorkflowTransitionConfig, states map[string]compiledState) ([]interfaces.WorkflowTransition, error) {
	if len(configs) == 0 {
		return nil, nil
	}

	result := make([]interfaces.WorkflowTransition, 0, len(configs))
	seen := make(map[string]struct{}, len(configs))

	for idx, cfg := range configs {
		name := strings.ToLower(strings.TrimSpace(cfg.Name))
		if name == "" {
			return nil, fmt.Errorf("%w at index %d", ErrTransitionNameRequired, idx)
		}

		fromRaw := strings.TrimSpace(cfg.From)
		toRaw := strings.TrimSpace(cfg.To)
		if fromRaw == "" || toRaw == "" {
			return nil, fmt.Errorf("%w: %s -> %s", ErrTransitionStateUnknown, cfg.From, cfg.To)
		}

		from := domain.NormalizeWorkflowState(fromRaw).ToInterface()
		to := domain.NormalizeWorkflowState(toRaw).ToInterface()
		if _, ok := states[string(from)]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrTransitionStateUnknown, from)
		}
		if _, ok := states[string(to)]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrTransitionStateUnknown, to)
		}

		key := transitionKey(name, from)
		if _, exists := seen[key]; exists {
			return nil, fmt.Errorf("%w: %s from %s", ErrDuplicateTransition, name, from)
		}
		seen[key] = struct{}{}

		result = append(result, interfaces.WorkflowTransition{
			Name:        name,
			Description: strings.TrimSpace(cfg.Description),
			From:        from,
			To:          to,
		})
	}

	return result, nil
}

func transitionKey(name string, from interfaces.WorkflowState) string {
	return name + "::" + string(from)
}
