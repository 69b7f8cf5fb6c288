package reporting

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// Fault kinds raised by the lifecycle.
const (
	KindOptionalCollaboratorMissing = "optional_collaborator_missing"
	KindStaleInvocation             = "stale_invocation"
	KindDeliveryExhausted           = "delivery_exhausted"
)

// LoggerReporter writes faults as warnings.
type LoggerReporter struct {
	logger interfaces.Logger
	now    func() time.Time
}

// NewLoggerReporter constructs the default reporter.
func NewLoggerReporter(logger interfaces.Logger) *LoggerReporter {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &LoggerReporter{logger: logger, now: time.Now}
}

func (r *LoggerReporter) Report(ctx context.Context, fault interfaces.Fault) {
	if fault.OccurredAt.IsZero() {
		fault.OccurredAt = r.now()
	}
	r.logger.WithContext(ctx).Warn("lifecycle.fault",
		"kind", fault.Kind,
		"handle_id", fault.HandleID,
		"action", fault.Action,
		"collaborator", fault.Collaborator,
		"error", fault.Err,
		"occurred_at", fault.OccurredAt,
	)
}

// Recorder keeps faults in memory and optionally forwards them.
type Recorder struct {
	mu     sync.Mutex
	faults []interfaces.Fault
	next   interfaces.FaultReporter
}

// NewRecorder builds a recorder. next may be nil.
func NewRecorder(next interfaces.FaultReporter) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Report(ctx context.Context, fault interfaces.Fault) {
	if fault.OccurredAt.IsZero() {
		fault.OccurredAt = time.Now()
	}
	r.mu.Lock()
	r.faults = append(r.faults, fault)
	r.mu.Unlock()
	if r.next != nil {
		r.next.Report(ctx, fault)
	}
}

// Faults returns a copy of every recorded fault.
func (r *Recorder) Faults() []interfaces.Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interfaces.Fault, len(r.faults))
	copy(out, r.faults)
	return out
}

// OfKind filters recorded faults.
func (r *Recorder) OfKind(kind string) []interfaces.Fault {
	var out []interfaces.Fault
	for _, fault := range r.Faults() {
		if fault.Kind == kind {
			out = append(out, fault)
		}
	}
	return out
}

// Clear drops recorded faults.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.faults = nil
	r.mu.Unlock()
}

// Multi fans a fault out to several reporters.
type Multi []interfaces.FaultReporter

func (m Multi) Report(ctx context.Context, fault interfaces.Fault) {
	for _, reporter := range m {
		if reporter != nil {
			reporter.Report(ctx, fault)
		}
	}
}
