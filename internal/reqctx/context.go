package reqctx

import (
	"context"
	"errors"
)

// Keys for request-scoped values in context
type contextKey string

const (
	requestIDKey contextKey = "requestID"
	userIDKey    contextKey = "userID"
	firmIDKey    contextKey = "firmID"
)

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// ErrNoActorInContext is returned when no authenticated actor is found in context
var ErrNoActorInContext = errors.New("no authenticated actor found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context
func RequestIDFromContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// WithActor adds the authenticated user and firm IDs to the context.
// firmID may be empty for platform admins that are not bound to a firm.
func WithActor(ctx context.Context, userID, firmID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, firmIDKey, firmID)
}

// UserIDFromContext extracts the authenticated user ID from the context
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", ErrNoActorInContext
	}
	return userID, nil
}

// FirmIDFromContext extracts the authenticated firm ID from the context
func FirmIDFromContext(ctx context.Context) (string, error) {
	firmID, ok := ctx.Value(firmIDKey).(string)
	if !ok || firmID == "" {
		return "", ErrNoActorInContext
	}
	return firmID, nil
}
