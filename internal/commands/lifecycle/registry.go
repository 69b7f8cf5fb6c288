package lifecyclecmd

import (
	"errors"
	"time"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-lifecycle/internal/commands"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// CommandRegistry is the minimal registration contract expected when wiring command handlers.
type CommandRegistry interface {
	RegisterCommand(handler any) error
}

// CronRegistrar matches the function signature used by go-command registries.
type CronRegistrar func(command.HandlerConfig, any) error

// HandlerSet groups the lifecycle command handlers.
type HandlerSet struct {
	RequestPublication   *commands.Handler[RequestPublicationCommand]
	RequestDepublication *commands.Handler[RequestDepublicationCommand]
	RequestWindow        *commands.Handler[RequestWindowCommand]
	CancelRequest        *commands.Handler[CancelRequestCommand]
	Archive              *commands.Handler[ArchiveCommand]
	Retry                *commands.Handler[RetryCommand]
	Restore              *commands.Handler[RestoreCommand]
	ProcessDue           *ProcessDueHandler
}

// All returns every constructed handler.
func (s *HandlerSet) All() []any {
	out := []any{
		s.RequestPublication,
		s.RequestDepublication,
		s.RequestWindow,
		s.CancelRequest,
		s.Archive,
		s.Retry,
		s.Restore,
	}
	if s.ProcessDue != nil {
		out = append(out, s.ProcessDue)
	}
	return out
}

// Options configures registration.
type Options struct {
	Registry CommandRegistry
	Cron     CronRegistrar
	// Timeout bounds interactive handlers. Zero leaves them without a deadline.
	Timeout time.Duration
	// DispatchCron overrides the process-due cron expression.
	DispatchCron string
	// Observer receives one outcome per command execution.
	Observer commands.OutcomeObserver
}

// RegisterLifecycleCommands builds the lifecycle handlers and registers them
// with the optional registry and cron integrations. pass may be nil when no
// dispatcher is wired, in which case ProcessDue is omitted.
func RegisterLifecycleCommands(lc Lifecycle, pass DuePass, provider interfaces.LoggerProvider, opts Options) (*HandlerSet, error) {
	if lc == nil {
		return nil, errors.New("lifecycle command registration: interpreter is nil")
	}
	logger := commands.CommandLogger(provider, "lifecycle")

	set := &HandlerSet{
		RequestPublication:   NewRequestPublicationHandler(lc, logger, handlerOptions[RequestPublicationCommand](logger, opts)...),
		RequestDepublication: NewRequestDepublicationHandler(lc, logger, handlerOptions[RequestDepublicationCommand](logger, opts)...),
		RequestWindow:        NewRequestWindowHandler(lc, logger, handlerOptions[RequestWindowCommand](logger, opts)...),
		CancelRequest:        NewCancelRequestHandler(lc, logger, handlerOptions[CancelRequestCommand](logger, opts)...),
		Archive:              NewArchiveHandler(lc, logger, handlerOptions[ArchiveCommand](logger, opts)...),
		Retry:                NewRetryHandler(lc, logger, handlerOptions[RetryCommand](logger, opts)...),
		Restore:              NewRestoreHandler(lc, logger, handlerOptions[RestoreCommand](logger, opts)...),
	}
	if pass != nil {
		set.ProcessDue = NewProcessDueHandler(pass, logger, ProcessDueWithCronExpression(opts.DispatchCron))
	}

	var errs error
	for _, handler := range set.All() {
		if opts.Registry != nil {
			if err := opts.Registry.RegisterCommand(handler); err != nil {
				errs = errors.Join(errs, err)
			}
		}
		if opts.Cron != nil {
			if cronCmd, ok := handler.(command.CronCommand); ok {
				if err := opts.Cron(cronCmd.CronOptions(), cronCmd.CronHandler()); err != nil {
					errs = errors.Join(errs, err)
				}
			}
		}
	}
	if errs != nil {
		return nil, errs
	}
	return set, nil
}

func handlerOptions[T command.Message](logger interfaces.Logger, opts Options) []commands.HandlerOption[T] {
	out := []commands.HandlerOption[T]{
		commands.WithTimeout[T](opts.Timeout),
	}
	if opts.Observer != nil {
		out = append(out, commands.WithTelemetry(commands.ObservedTelemetry[T](logger, opts.Observer)))
	}
	return out
}
