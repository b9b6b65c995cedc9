// Package requestctx provides request-scoped values (client id, request id)
// set by middleware.
package requestctx

import "context"

type contextKey struct{ name string }

var (
	clientIDKey  = &contextKey{"client_id"}
	requestIDKey = &contextKey{"request_id"}
)

// SetClientID stores the authenticated client id in the context.
func SetClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientID returns the client id from context, or "" if not set.
func ClientID(ctx context.Context) string {
	v, _ := ctx.Value(clientIDKey).(string)
	return v
}

// SetRequestID stores the correlation id of the current request.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id from context, or "" if not set.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
