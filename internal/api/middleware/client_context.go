// Package middleware provides the HTTP middleware chain for the Rootline API.
package middleware

import (
	"context"
	"time"
)

type clientContextKey struct{}

// ClientContext is the authenticated caller's identity, attached to the
// request context by the auth middleware after key validation. Handlers use
// it for permission checks and audit logging.
type ClientContext struct {
	ClientID    string
	Name        string
	Permissions []string
	KeyID       string
	AuthTime    time.Time
}

// GetClientContext returns the caller identity, or false when the request
// never passed authentication (public endpoints, tests).
func GetClientContext(ctx context.Context) (ClientContext, bool) {
	clientCtx, ok := ctx.Value(clientContextKey{}).(ClientContext)

	return clientCtx, ok
}

// SetClientContext attaches a caller identity to the context.
func SetClientContext(ctx context.Context, clientCtx ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, clientCtx)
}
