// ABOUTME: Identity and authentication method types for verified requests
// ABOUTME: Defines the scope constants and the admin-implies-all scope check

package auth

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Scope constants. ScopeAdmin implies every other scope.
const (
	ScopeRead      = "read"
	ScopeWrite     = "write"
	ScopeUpload    = "upload"
	ScopePublish   = "publish"
	ScopeDelete    = "delete"
	ScopeAdmin     = "admin"
	ScopeKeyCreate = "api_key_create"
	ScopeKeyManage = "api_key_manage"
)

// ValidKeyScopes lists the scopes that may be granted to a new API key.
var ValidKeyScopes = []string{ScopeRead, ScopeWrite, ScopeUpload, ScopePublish, ScopeDelete, ScopeAdmin}

// Identity is the verified caller of a request. It is created fresh per
// successful verification, never mutated, and discarded when the request ends.
type Identity struct {
	UserID    uuid.UUID
	Method    Method
	Scopes    []string
	Email     string
	Handle    string
	CreatedAt time.Time
}

// HasScope reports whether the identity holds the scope, either directly or
// via the admin wildcard.
func (id *Identity) HasScope(scope string) bool {
	return slices.Contains(id.Scopes, scope) || slices.Contains(id.Scopes, ScopeAdmin)
}

// Method records how an identity was verified, so downstream code can apply
// method-specific policy (only signed-token identities may mint API keys).
type Method interface {
	methodName() string
}

// MethodAPIKey marks an identity verified through an opaque API key.
type MethodAPIKey struct {
	KeyID uuid.UUID
}

func (MethodAPIKey) methodName() string { return "api_key" }

// MethodSignedToken marks an identity verified through a signed token.
type MethodSignedToken struct {
	Issuer string
}

func (MethodSignedToken) methodName() string { return "signed_token" }

// MethodName returns the wire name of the identity's verification method.
func MethodName(m Method) string {
	if m == nil {
		return "unknown"
	}
	return m.methodName()
}
