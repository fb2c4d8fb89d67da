package api

import (
	"context"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

type callerKey struct{}

// ContextWithCaller returns a new context carrying the calling identity.
func ContextWithCaller(ctx context.Context, caller identity.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext extracts the calling identity from the context.
// Returns the zero address if not set.
func CallerFromContext(ctx context.Context) identity.Address {
	if v := ctx.Value(callerKey{}); v != nil {
		if caller, ok := v.(identity.Address); ok {
			return caller
		}
	}
	return identity.ZeroAddress
}

type requestIDKey struct{}

// ContextWithRequestID returns a new context carrying the request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext extracts the request id from the context.
// Returns empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
