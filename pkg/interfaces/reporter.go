package interfaces

import (
	"context"
	"time"
)

// Fault describes a non-fatal problem raised while running an auxiliary step.
type Fault struct {
	Kind         string
	HandleID     string
	Action       string
	Collaborator string
	Err          error
	OccurredAt   time.Time
}

// FaultReporter receives non-fatal faults. The primary transition keeps going
// after a report.
type FaultReporter interface {
	Report(ctx context.Context, fault Fault)
}
