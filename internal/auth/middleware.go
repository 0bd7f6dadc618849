// ABOUTME: HTTP middleware wiring authentication and scope checks into routes
// ABOUTME: Writes the structured JSON error bodies with proper status codes

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/carpdev/carp-registry/internal/metrics"
)

// Middleware returns middleware that authenticates every request under the
// given strategy and stores the identity in the request context. Failures
// short-circuit with the structured error body.
func Middleware(a *Authenticator, strategy Strategy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, authErr := a.Authenticate(r.Context(), r.Header, strategy)
			if authErr != nil {
				WriteError(w, authErr)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireScope returns middleware enforcing a scope on the identity placed in
// the context by Middleware. Must run after it.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := MustIdentityFromContext(r.Context())
			if authErr := Authorize(identity, scope); authErr != nil {
				WriteError(w, authErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError serializes an auth error as its JSON body. 401 responses carry a
// WWW-Authenticate challenge per RFC 6750.
func WriteError(w http.ResponseWriter, e *Error) {
	metrics.RecordAuthFailure(e.Code)
	w.Header().Set("Content-Type", "application/json")
	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}
