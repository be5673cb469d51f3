package logger

import "context"

// ctxKey keys logger values in a context. An unexported type cannot
// collide with keys from other packages.
type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores the correlation ID for the current request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation ID stored by WithRequestID, or "" when
// the context carries none (background jobs, tests).
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
