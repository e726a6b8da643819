package logger

import "context"

// ctxKey is unexported so no other package can collide with our context values.
type ctxKey struct{}

// WithRequestID stores the request ID in the context. The HTTP middleware
// sets it and the queue adapter carries it across NATS, so executor logs
// correlate with the request that submitted the task.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the request ID from the context, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
