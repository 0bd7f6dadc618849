// ABOUTME: Context helpers for carrying the verified identity through a request
// ABOUTME: Follows the WithX/FromContext pattern used across the codebase

package auth

import "context"

type contextKey int

const identityKey contextKey = iota

// WithIdentity returns a context carrying the verified identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the verified identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// MustIdentityFromContext retrieves the verified identity or panics. Use only
// in handlers that are guaranteed to run behind the auth middleware.
func MustIdentityFromContext(ctx context.Context) *Identity {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; handler not behind auth middleware")
	}
	return id
}
