package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-lifecycle/internal/domain"
	"github.com/goliatone/go-lifecycle/internal/runtimeconfig"
	"github.com/goliatone/go-lifecycle/internal/workflow"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

func TestCompileDefinition_DefaultsWhenEmpty(t *testing.T) {
	def, err := workflow.CompileDefinition(runtimeconfig.WorkflowConfig{})
	if err != nil {
		t.Fatalf("CompileDefinition returned error: %v", err)
	}
	if def.Name != "document-lifecycle" {
		t.Fatalf("expected default name, got %q", def.Name)
	}
	if def.InitialState != domain.WorkflowStateIdle.ToInterface() {
		t.Fatalf("expected initial state idle, got %q", def.InitialState)
	}
	if len(def.States) != 5 || len(def.Transitions) != 10 {
		t.Fatalf("unexpected default chart: %d states, %d transitions", len(def.States), len(def.Transitions))
	}
}

func TestCompileDefinition_NormalizesNames(t *testing.T) {
	cfg := workflow.DefaultWorkflowConfig()
	cfg.States[0].Name = "  IDLE "
	cfg.Transitions[0].Name = " Request "

	def, err := workflow.CompileDefinition(cfg)
	if err != nil {
		t.Fatalf("CompileDefinition returned error: %v", err)
	}
	if def.States[0].Name != interfaces.WorkflowState("idle") {
		t.Fatalf("expected normalized state, got %q", def.States[0].Name)
	}
	if def.Transitions[0].Name != domain.EventRequest {
		t.Fatalf("expected normalized transition, got %q", def.Transitions[0].Name)
	}
}

func TestCompileDefinition_DuplicateState(t *testing.T) {
	cfg := runtimeconfig.WorkflowConfig{
		States: []runtimeconfig.WorkflowStateConfig{{Name: "idle"}, {Name: "Idle"}},
	}
	if _, err := workflow.CompileDefinition(cfg); !errors.Is(err, workflow.ErrDuplicateState) {
		t.Fatalf("expected duplicate state error, got %v", err)
	}
}

func TestCompileDefinition_InvalidTransition(t *testing.T) {
	cfg := runtimeconfig.WorkflowConfig{
		States: []runtimeconfig.WorkflowStateConfig{{Name: "idle"}},
		Transitions: []runtimeconfig.WorkflowTransitionConfig{
			{Name: "publish", From: "idle", To: "published"},
		},
	}
	_, err := workflow.CompileDefinition(cfg)
	if err == nil || !strings.Contains(err.Error(), "unknown state") {
		t.Fatalf("expected unknown state error, got %v", err)
	}
}

func TestCompileDefinition_DuplicateTransition(t *testing.T) {
	cfg := workflow.DefaultWorkflowConfig()
	cfg.Transitions = append(cfg.Transitions, runtimeconfig.WorkflowTransitionConfig{Name: "request", From: "idle", To: "dispatching"})
	if _, err := workflow.CompileDefinition(cfg); !errors.Is(err, workflow.ErrDuplicateTransition) {
		t.Fatalf("expected duplicate transition error, got %v", err)
	}
}

func TestCompileDefinition_RejectsTerminalInitial(t *testing.T) {
	cfg := runtimeconfig.WorkflowConfig{
		States: []runtimeconfig.WorkflowStateConfig{{Name: "archived", Terminal: true, Initial: true}},
	}
	if _, err := workflow.CompileDefinition(cfg); !errors.Is(err, workflow.ErrInitialStateInvalid) {
		t.Fatalf("expected initial state error, got %v", err)
	}
}

func TestNewChart_ValidatesRequiredEvents(t *testing.T) {
	cfg := workflow.DefaultWorkflowConfig()
	cfg.Transitions = cfg.Transitions[:len(cfg.Transitions)-1]
	def, err := workflow.CompileDefinition(cfg)
	if err != nil {
		t.Fatalf("CompileDefinition returned error: %v", err)
	}
	if _, err := workflow.NewChart(def, nil, nil); !errors.Is(err, workflow.ErrChartEventMissing) {
		t.Fatalf("expected missing event error, got %v", err)
	}
}

func TestNewChart_RejectsTerminalExits(t *testing.T) {
	cfg := workflow.DefaultWorkflowConfig()
	cfg.Transitions = append(cfg.Transitions, runtimeconfig.WorkflowTransitionConfig{Name: "revive", From: "archived", To: "idle"})
	def, err := workflow.CompileDefinition(cfg)
	if err != nil {
		t.Fatalf("CompileDefinition returned error: %v", err)
	}
	if _, err := workflow.NewChart(def, nil, nil); !errors.Is(err, workflow.ErrChartTerminalOutgoing) {
		t.Fatalf("expected terminal outgoing error, got %v", err)
	}
}

func TestNewChart_RequiresTerminalArchive(t *testing.T) {
	cfg := workflow.DefaultWorkflowConfig()
	cfg.States[4].Terminal = false
	def, err := workflow.CompileDefinition(cfg)
	if err != nil {
		t.Fatalf("CompileDefinition returned error: %v", err)
	}
	if _, err := workflow.NewChart(def, nil, nil); !errors.Is(err, workflow.ErrChartArchivedNotTerminal) {
		t.Fatalf("expected archived-not-terminal error, got %v", err)
	}
}

func TestChartStep(t *testing.T) {
	chart, err := workflow.NewChart(workflow.DefaultDefinition(), nil, nil)
	if err != nil {
		t.Fatalf("NewChart: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		from  domain.WorkflowState
		event string
		to    domain.WorkflowState
	}{
		{domain.WorkflowStateIdle, domain.EventRequest, domain.WorkflowStateRequestAccepted},
		{domain.WorkflowStateRequestAccepted, domain.EventDispatch, domain.WorkflowStateDispatching},
		{domain.WorkflowStateFailed, domain.EventDispatch, domain.WorkflowStateDispatching},
		{domain.WorkflowStateDispatching, domain.EventReschedule, domain.WorkflowStateRequestAccepted},
		{domain.WorkflowStateDispatching, domain.EventFail, domain.WorkflowStateFailed},
		{domain.WorkflowStateFailed, domain.EventCancel, domain.WorkflowStateIdle},
		{domain.WorkflowStateDispatching, domain.EventArchived, domain.WorkflowStateArchived},
	}
	for _, tc := range cases {
		got, err := chart.Step(ctx, "h1", tc.from, tc.event)
		if err != nil {
			t.Fatalf("%s --%s-->: %v", tc.from, tc.event, err)
		}
		if got != tc.to {
			t.Fatalf("%s --%s--> expected %s, got %s", tc.from, tc.event, tc.to, got)
		}
	}

	got, err := chart.Step(ctx, "h1", domain.WorkflowStateArchived, domain.EventDispatch)
	var stateErr *domain.StateError
	if !errors.As(err, &stateErr) || got != domain.WorkflowStateArchived {
		t.Fatalf("expected StateError from archived, got %s %v", got, err)
	}
	if chart.Can(domain.WorkflowStateIdle, domain.EventComplete) {
		t.Fatalf("expected complete to be rejected from idle")
	}
	if !chart.Terminal(domain.WorkflowStateArchived) || chart.Terminal(domain.WorkflowStateFailed) {
		t.Fatalf("unexpected terminal flags")
	}
}
