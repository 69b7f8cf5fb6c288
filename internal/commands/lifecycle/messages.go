package lifecyclecmd

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-lifecycle/internal/workflow"
	"github.com/google/uuid"
)

const (
	requestPublicationMessageType   = "lifecycle.request.publish"
	requestDepublicationMessageType = "lifecycle.request.depublish"
	requestWindowMessageType        = "lifecycle.request.window"
	cancelRequestMessageType        = "lifecycle.request.cancel"
	archiveMessageType              = "lifecycle.handle.archive"
	retryMessageType                = "lifecycle.handle.retry"
	restoreMessageType              = "lifecycle.handle.restore"
	processDueMessageType           = "lifecycle.invocations.process_due"
)

// ResultTarget is embedded by messages whose handlers report the resulting
// handle state. When Result is non-nil it is filled on success.
type ResultTarget struct {
	Result *workflow.Result `json:"-"`
}

func (t ResultTarget) store(result workflow.Result) {
	if t.Result != nil {
		*t.Result = result
	}
}

func handleIDRequired(errs validation.Errors, prefix string, id uuid.UUID) {
	if id == uuid.Nil {
		errs["handle_id"] = validation.NewError(prefix+".handle_id_required", "handle_id is required")
	}
}

func collect(errs validation.Errors) error {
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequestPublicationCommand asks for the published variant to be refreshed
// from the unpublished one. A nil or past At runs immediately.
type RequestPublicationCommand struct {
	HandleID    uuid.UUID  `json:"handle_id"`
	At          *time.Time `json:"at,omitempty"`
	RequestedBy uuid.UUID  `json:"requested_by,omitempty"`
	ResultTarget
}

// Type implements command.Message.
func (RequestPublicationCommand) Type() string { return requestPublicationMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m RequestPublicationCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, requestPublicationMessageType, m.HandleID)
	return collect(errs)
}

// RequestDepublicationCommand asks for the published variant to be removed.
type RequestDepublicationCommand struct {
	HandleID    uuid.UUID  `json:"handle_id"`
	At          *time.Time `json:"at,omitempty"`
	RequestedBy uuid.UUID  `json:"requested_by,omitempty"`
	ResultTarget
}

// Type implements command.Message.
func (RequestDepublicationCommand) Type() string { return requestDepublicationMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m RequestDepublicationCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, requestDepublicationMessageType, m.HandleID)
	return collect(errs)
}

// RequestWindowCommand publishes at PublishAt (or now) and depublishes at DepublishAt.
type RequestWindowCommand struct {
	HandleID    uuid.UUID  `json:"handle_id"`
	PublishAt   *time.Time `json:"publish_at,omitempty"`
	DepublishAt time.Time  `json:"depublish_at"`
	RequestedBy uuid.UUID  `json:"requested_by,omitempty"`
	ResultTarget
}

// Type implements command.Message.
func (RequestWindowCommand) Type() string { return requestWindowMessageType }

// Validate checks field presence and ordering. Whether DepublishAt lies in
// the future is decided by the runtime clock.
func (m RequestWindowCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, requestWindowMessageType, m.HandleID)
	if m.DepublishAt.IsZero() {
		errs["depublish_at"] = validation.NewError(requestWindowMessageType+".depublish_at_required", "depublish_at is required")
	} else if m.PublishAt != nil && !m.DepublishAt.After(*m.PublishAt) {
		errs["depublish_at"] = validation.NewError(requestWindowMessageType+".depublish_at_order", "depublish_at must be after publish_at")
	}
	return collect(errs)
}

// CancelRequestCommand withdraws the pending request of a handle.
type CancelRequestCommand struct {
	HandleID uuid.UUID `json:"handle_id"`
	ResultTarget
}

// Type implements command.Message.
func (CancelRequestCommand) Type() string { return cancelRequestMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m CancelRequestCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, cancelRequestMessageType, m.HandleID)
	return collect(errs)
}

// ArchiveCommand retires every variant of a handle.
type ArchiveCommand struct {
	HandleID uuid.UUID `json:"handle_id"`
	ResultTarget
}

// Type implements command.Message.
func (ArchiveCommand) Type() string { return archiveMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m ArchiveCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, archiveMessageType, m.HandleID)
	return collect(errs)
}

// RetryCommand re-runs the retained request of a failed handle.
type RetryCommand struct {
	HandleID uuid.UUID `json:"handle_id"`
	ResultTarget
}

// Type implements command.Message.
func (RetryCommand) Type() string { return retryMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m RetryCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, retryMessageType, m.HandleID)
	return collect(errs)
}

// RestoreCommand overwrites the unpublished variant from source.
type RestoreCommand struct {
	HandleID uuid.UUID `json:"handle_id"`
	Source   string    `json:"source"`
	ResultTarget
}

// Type implements command.Message.
func (RestoreCommand) Type() string { return restoreMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m RestoreCommand) Validate() error {
	errs := validation.Errors{}
	handleIDRequired(errs, restoreMessageType, m.HandleID)
	if strings.TrimSpace(m.Source) == "" {
		errs["source"] = validation.NewError(restoreMessageType+".source_required", "source is required")
	}
	return collect(errs)
}

// ProcessDueCommand runs one dispatcher pass over due invocations.
type ProcessDueCommand struct{}

// Type implements command.Message.
func (ProcessDueCommand) Type() string { return processDueMessageType }

// Validate satisfies command.Message.
func (ProcessDueCommand) Validate() error {
	return validation.ValidateStruct(&ProcessDueCommand{})
}
