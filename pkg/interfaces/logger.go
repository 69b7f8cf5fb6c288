package interfaces

import "context"

// Logger is the leveled, key/value logger used across the lifecycle runtime.
// Messages are dotted event names such as "invocations.fired"; args are
// alternating keys and values. The method set matches go-logger's glog.Logger.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider returns the logger for a module name like lifecycle.jobs.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// FieldsLogger is implemented by loggers that can bind fields such as
// handle_id to every later entry.
type FieldsLogger interface {
	WithFields(fields map[string]any) Logger
}
