package logging

import (
	"maps"

	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// WithFields attaches fields to logger when it implements
// interfaces.FieldsLogger. Other loggers are returned unchanged.
func WithFields(logger interfaces.Logger, fields map[string]any) interfaces.Logger {
	if logger == nil || len(fields) == 0 {
		return logger
	}
	if fl, ok := logger.(interfaces.FieldsLogger); ok {
		return fl.WithFields(maps.Clone(fields))
	}
	return logger
}
