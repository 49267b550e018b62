package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyActor     contextKey = "actor"
)

// Actor is the caller identity forwarded by the gateway.
type Actor struct {
	UserID   string
	AgencyID string
	Operator bool
	System   bool
}

// SystemActor is used by background workers that act on behalf of the job owner.
var SystemActor = Actor{UserID: "system", System: true}

// Owns reports whether the actor may act on a job owned by userID/agencyID.
func (a Actor) Owns(userID, agencyID string) bool {
	if a.System {
		return true
	}
	if a.UserID != "" && a.UserID == userID {
		return true
	}
	return a.AgencyID != "" && a.AgencyID == agencyID
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithActor adds the caller identity to the context
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, a)
}

// ActorFromContext extracts the caller identity from context
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ContextKeyActor).(Actor)
	return a, ok
}

// WithTimeout creates a context with the given timeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
