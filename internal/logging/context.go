package logging

import (
	"context"
	"maps"
)

type contextKey struct{}

// ContextWithFields returns ctx annotated with logging fields. Providers merge
// them into entries emitted through Logger.WithContext. Later values win.
func ContextWithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil || len(fields) == 0 {
		return ctx
	}
	merged := ContextFields(ctx)
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, contextKey{}, merged)
}

// ContextWithInvocation annotates ctx with the handle and correlation id of a
// firing invocation. Blank values are skipped.
func ContextWithInvocation(ctx context.Context, handleID, correlationID, invocationID string) context.Context {
	fields := map[string]any{}
	if handleID != "" {
		fields[fieldHandleID] = handleID
	}
	if correlationID != "" {
		fields[fieldCorrelationID] = correlationID
	}
	if invocationID != "" {
		fields["invocation_id"] = invocationID
	}
	return ContextWithFields(ctx, fields)
}

// ContextFields returns a copy of the fields stored on ctx.
func ContextFields(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	fields, ok := ctx.Value(contextKey{}).(map[string]any)
	if !ok || len(fields) == 0 {
		return nil
	}
	return maps.Clone(fields)
}
