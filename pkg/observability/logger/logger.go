// Package logger provides the structured logging used across the store.
package logger

import (
	"context"
)

// Logger is the structured logging contract. Every method takes a message
// followed by alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that adds args to every entry.
	With(args ...any) Logger

	// WithContext returns a child logger carrying the operation ID stored in
	// ctx, if any.
	WithContext(ctx context.Context) Logger
}

type contextKey struct{}

// ContextWithOperationID tags ctx with an operation ID that WithContext
// attaches to log entries.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// OperationIDFromContext returns the operation ID stored in ctx.
func OperationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
