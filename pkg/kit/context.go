// Package kit provides small cross-cutting helpers shared by every layer of
// the agent: typed context propagation and an endpoint middleware chain.
// Nothing here is domain-specific — it exists so the domain packages never
// reach for a global/package-level singleton (see the "Global state" design
// note: session identity is threaded explicitly, not read from a package var).
package kit

import "context"

type contextKey string

const (
	ImpressionIDKey contextKey = "kit_impression_id"
	SessionIDKey    contextKey = "kit_session_id"
	TraceIDKey      contextKey = "kit_trace_id"
	RequestIDKey    contextKey = "kit_request_id"
)

func WithImpressionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ImpressionIDKey, id)
}
func GetImpressionID(ctx context.Context) string {
	v, _ := ctx.Value(ImpressionIDKey).(string)
	return v
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
