// Package requestcontext provides context accessors for per-call values that the
// session service and identity clients read without knowing who set them.
//
// Usage in callers (CLI, tests):
//
//	ctx = requestcontext.WithRequestID(ctx, "req-123")
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//
// Usage in services and clients:
//
//	now := requestcontext.Now(ctx)
//	requestID := requestcontext.RequestID(ctx)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID,
// otherwise a child context with a fresh UUID, plus the ID in effect.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// Now retrieves the injected time from context.
// Falls back to time.Now() when not set (normal runtime path).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that pin expiry arithmetic
//   - The expiry monitor, so one tick sees one consistent "now"
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
