package reporting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-lifecycle/internal/logging/console"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

func TestRecorderForwardsAndFilters(t *testing.T) {
	var buf bytes.Buffer
	provider := console.NewProvider(console.Options{Writer: &buf})
	logged := NewLoggerReporter(provider.GetLogger("lifecycle.actions"))
	rec := NewRecorder(logged)

	rec.Report(context.Background(), interfaces.Fault{
		Kind:         KindOptionalCollaboratorMissing,
		HandleID:     "doc-1",
		Action:       "archive",
		Collaborator: "core",
		Err:          errors.New("no archive mapping"),
	})
	rec.Report(context.Background(), interfaces.Fault{Kind: KindStaleInvocation, HandleID: "doc-2"})

	if got := len(rec.OfKind(KindOptionalCollaboratorMissing)); got != 1 {
		t.Fatalf("expected one collaborator fault, got %d", got)
	}
	faults := rec.Faults()
	if len(faults) != 2 || faults[0].OccurredAt.IsZero() {
		t.Fatalf("expected timestamped faults, got %+v", faults)
	}
	if !strings.Contains(buf.String(), "collaborator=core") {
		t.Fatalf("expected forwarded log entry, got %q", buf.String())
	}

	rec.Clear()
	if len(rec.Faults()) != 0 {
		t.Fatal("expected recorder to be cleared")
	}
}

func TestMultiSkipsNilReporters(t *testing.T) {
	a, b := NewRecorder(nil), NewRecorder(nil)
	Multi{a, nil, b}.Report(context.Background(), interfaces.Fault{Kind: "x"})
	if len(a.Faults()) != 1 || len(b.Faults()) != 1 {
		t.Fatal("expected both recorders to receive the fault")
	}
}
