package http

import "context"

type contextKey string

const (
	pathIDContextKey contextKey = "path_id"
	callerContextKey contextKey = "caller"
)

// ContextWithPathID stores the resource identifier taken from the request path.
func ContextWithPathID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, pathIDContextKey, id)
}

// PathIDFromContext returns the resource identifier stored by the router.
func PathIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pathIDContextKey).(string)
	return id, ok
}

// ContextWithCaller records the authenticated caller.
func ContextWithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext returns the caller recorded by RequireAuthorization.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerContextKey).(string)
	return caller, ok
}
