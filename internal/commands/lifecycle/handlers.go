package lifecyclecmd

import (
	"context"
	"strings"
	"time"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-lifecycle/internal/commands"
	"github.com/goliatone/go-lifecycle/internal/jobs"
	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/internal/workflow"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
	"github.com/google/uuid"
)

// Lifecycle is the command surface of the workflow interpreter.
type Lifecycle interface {
	RequestPublication(ctx context.Context, input workflow.RequestInput) (workflow.Result, error)
	RequestDepublication(ctx context.Context, input workflow.RequestInput) (workflow.Result, error)
	RequestPublicationWindow(ctx context.Context, input workflow.WindowInput) (workflow.Result, error)
	CancelRequest(ctx context.Context, handleID uuid.UUID) (workflow.Result, error)
	Archive(ctx context.Context, handleID uuid.UUID) (workflow.Result, error)
	Retry(ctx context.Context, handleID uuid.UUID) (workflow.Result, error)
	Restore(ctx context.Context, handleID uuid.UUID, source string) (workflow.Result, error)
}

// DuePass runs one dispatcher pass.
type DuePass interface {
	Process(ctx context.Context) (jobs.Summary, error)
}

func newHandler[T command.Message](exec command.CommandFunc[T], logger interfaces.Logger, operation string, opts []commands.HandlerOption[T]) *commands.Handler[T] {
	handlerOpts := []commands.HandlerOption[T]{
		commands.WithLogger[T](logger),
		commands.WithOperation[T](operation),
	}
	handlerOpts = append(handlerOpts, opts...)
	return commands.NewHandler(exec, handlerOpts...)
}

// NewRequestPublicationHandler wires RequestPublicationCommand to the interpreter.
func NewRequestPublicationHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[RequestPublicationCommand]) *commands.Handler[RequestPublicationCommand] {
	return newHandler(func(ctx context.Context, msg RequestPublicationCommand) error {
		result, err := lc.RequestPublication(ctx, workflow.RequestInput{
			HandleID:    msg.HandleID,
			When:        msg.At,
			RequestedBy: msg.RequestedBy,
		})
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "request.publish", opts)
}

// NewRequestDepublicationHandler wires RequestDepublicationCommand to the interpreter.
func NewRequestDepublicationHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[RequestDepublicationCommand]) *commands.Handler[RequestDepublicationCommand] {
	return newHandler(func(ctx context.Context, msg RequestDepublicationCommand) error {
		result, err := lc.RequestDepublication(ctx, workflow.RequestInput{
			HandleID:    msg.HandleID,
			When:        msg.At,
			RequestedBy: msg.RequestedBy,
		})
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "request.depublish", opts)
}

// NewRequestWindowHandler wires RequestWindowCommand to the interpreter.
func NewRequestWindowHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[RequestWindowCommand]) *commands.Handler[RequestWindowCommand] {
	return newHandler(func(ctx context.Context, msg RequestWindowCommand) error {
		result, err := lc.RequestPublicationWindow(ctx, workflow.WindowInput{
			HandleID:    msg.HandleID,
			PublishAt:   msg.PublishAt,
			DepublishAt: msg.DepublishAt,
			RequestedBy: msg.RequestedBy,
		})
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "request.window", opts)
}

// NewCancelRequestHandler wires CancelRequestCommand to the interpreter.
func NewCancelRequestHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[CancelRequestCommand]) *commands.Handler[CancelRequestCommand] {
	return newHandler(func(ctx context.Context, msg CancelRequestCommand) error {
		result, err := lc.CancelRequest(ctx, msg.HandleID)
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "request.cancel", opts)
}

// NewArchiveHandler wires ArchiveCommand to the interpreter.
func NewArchiveHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[ArchiveCommand]) *commands.Handler[ArchiveCommand] {
	return newHandler(func(ctx context.Context, msg ArchiveCommand) error {
		result, err := lc.Archive(ctx, msg.HandleID)
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "handle.archive", opts)
}

// NewRetryHandler wires RetryCommand to the interpreter.
func NewRetryHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[RetryCommand]) *commands.Handler[RetryCommand] {
	return newHandler(func(ctx context.Context, msg RetryCommand) error {
		result, err := lc.Retry(ctx, msg.HandleID)
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "handle.retry", opts)
}

// NewRestoreHandler wires RestoreCommand to the interpreter.
func NewRestoreHandler(lc Lifecycle, logger interfaces.Logger, opts ...commands.HandlerOption[RestoreCommand]) *commands.Handler[RestoreCommand] {
	return newHandler(func(ctx context.Context, msg RestoreCommand) error {
		result, err := lc.Restore(ctx, msg.HandleID, strings.TrimSpace(msg.Source))
		if err != nil {
			return err
		}
		msg.store(result)
		return nil
	}, logger, "handle.restore", opts)
}

type processDueConfig struct {
	cronConfig command.HandlerConfig
	timeout    time.Duration
}

// ProcessDueOption customises the process-due handler.
type ProcessDueOption func(*processDueConfig)

// ProcessDueWithCronExpression overrides the cron expression.
func ProcessDueWithCronExpression(expression string) ProcessDueOption {
	return func(cfg *processDueConfig) {
		if trimmed := strings.TrimSpace(expression); trimmed != "" {
			cfg.cronConfig.Expression = trimmed
		}
	}
}

// ProcessDueWithTimeout overrides the default execution timeout.
func ProcessDueWithTimeout(timeout time.Duration) ProcessDueOption {
	return func(cfg *processDueConfig) {
		cfg.timeout = timeout
	}
}

// ProcessDueHandler runs a dispatcher pass on demand or from cron. Hosts
// that do not run the polling loop use it to fire due invocations.
type ProcessDueHandler struct {
	pass       DuePass
	logger     interfaces.Logger
	cronConfig command.HandlerConfig
	timeout    time.Duration
}

// NewProcessDueHandler constructs a handler over pass.
func NewProcessDueHandler(pass DuePass, logger interfaces.Logger, opts ...ProcessDueOption) *ProcessDueHandler {
	cfg := processDueConfig{
		cronConfig: command.HandlerConfig{
			Expression: "@every 1m",
		},
		timeout: commands.DefaultCommandTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &ProcessDueHandler{
		pass:       pass,
		logger:     commands.EnsureLogger(logger),
		cronConfig: cfg.cronConfig,
		timeout:    cfg.timeout,
	}
}

// Execute satisfies command.Commander[ProcessDueCommand].
func (h *ProcessDueHandler) Execute(ctx context.Context, msg ProcessDueCommand) error {
	if err := commands.WrapValidationError(command.ValidateMessage(msg)); err != nil {
		return err
	}
	ctx = commands.EnsureContext(ctx)
	ctx, cancel := commands.WithCommandTimeout(ctx, h.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return commands.WrapContextError(err)
	}

	summary, err := h.pass.Process(ctx)
	if err != nil {
		return commands.WrapExecuteError(err)
	}

	logging.WithFields(h.logger, map[string]any{
		"operation": "invocations.process_due",
		"due":       summary.Due,
		"fired":     summary.Fired(),
		"failed":    summary.Failed,
	}).Debug("lifecycle.command.process_due.completed")
	return nil
}

// CronHandler satisfies command.CronCommand.
func (h *ProcessDueHandler) CronHandler() func() error {
	return func() error {
		return h.Execute(context.Background(), ProcessDueCommand{})
	}
}

// CronOptions satisfies command.CronCommand.
func (h *ProcessDueHandler) CronOptions() command.HandlerConfig {
	return h.cronConfig
}

// CLIHandler exposes the handler to CLI integrations.
func (h *ProcessDueHandler) CLIHandler() any {
	return h
}

// CLIOptions describes the CLI metadata for a dispatcher pass.
func (h *ProcessDueHandler) CLIOptions() command.CLIConfig {
	return command.CLIConfig{
		Path:        []string{"invocations", "process-due"},
		Group:       "invocations",
		Description: "Fire every scheduled invocation whose time has passed",
	}
}
