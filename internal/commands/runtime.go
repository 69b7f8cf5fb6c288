package commands

import (
	"context"
	"time"

	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// DefaultCommandTimeout bounds the cron-driven dispatch pass. Interactive
// handlers run without a deadline unless one is configured.
const DefaultCommandTimeout = 30 * time.Second

// EnsureContext substitutes context.Background for a nil ctx.
func EnsureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// WithCommandTimeout derives a deadline from ctx. Non-positive timeouts
// return ctx with a no-op cancel.
func WithCommandTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// EnsureLogger substitutes logging.NoOp for a nil logger.
func EnsureLogger(logger interfaces.Logger) interfaces.Logger {
	if logger != nil {
		return logger
	}
	return logging.NoOp()
}
