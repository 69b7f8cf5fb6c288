package logging

import (
	"context"
	"strings"

	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

const (
	rootModule        = "lifecycle"
	workflowModule    = "lifecycle.workflow"
	actionsModule     = "lifecycle.actions"
	schedulerModule   = "lifecycle.scheduler"
	invocationsModule = "lifecycle.invocations"
	jobsModule        = "lifecycle.jobs"
	storageModule     = "lifecycle.storage"
)

const (
	fieldHandleID      = "handle_id"
	fieldCorrelationID = "correlation_id"
	fieldAction        = "action"
)

// ModuleLogger returns a module-scoped logger, defaulting to a no-op
// implementation when no provider is supplied. The returned logger attaches
// the module identifier as structured context so downstream entries can be
// filtered predictably.
func ModuleLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	if module == "" {
		module = rootModule
	}

	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}

	if fieldsLogger, ok := logger.(interfaces.FieldsLogger); ok {
		return fieldsLogger.WithFields(map[string]any{
			"module": module,
		})
	}

	return WithFields(logger, map[string]any{
		"module": module,
	})
}

// WorkflowLogger returns the logger namespace reserved for the interpreter.
func WorkflowLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, workflowModule)
}

// ActionsLogger returns the logger namespace reserved for lifecycle actions.
func ActionsLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, actionsModule)
}

// SchedulerLogger returns the logger namespace reserved for the job store.
func SchedulerLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, schedulerModule)
}

// InvocationsLogger returns the logger namespace reserved for scheduled invocations.
func InvocationsLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, invocationsModule)
}

// JobsLogger returns the logger namespace reserved for the dispatcher.
func JobsLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, jobsModule)
}

// StorageLogger returns the logger namespace reserved for persistence.
func StorageLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, storageModule)
}

// WithHandleContext enriches the logger with the handle, correlation and
// action identifiers. Empty values are ignored.
func WithHandleContext(logger interfaces.Logger, handleID, correlationID, action string) interfaces.Logger {
	fields := map[string]any{}
	if trimmed := strings.TrimSpace(handleID); trimmed != "" {
		fields[fieldHandleID] = trimmed
	}
	if trimmed := strings.TrimSpace(correlationID); trimmed != "" {
		fields[fieldCorrelationID] = trimmed
	}
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		fields[fieldAction] = trimmed
	}
	return WithFields(logger, fields)
}

// NoOp returns a logger that drops every log entry. It satisfies the Logger
// contract so services can safely operate when logging is disabled.
func NoOp() interfaces.Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ interfaces.Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) interfaces.Logger {
	return n
}

func (n noopLogger) WithContext(context.Context) interfaces.Logger {
	return n
}
