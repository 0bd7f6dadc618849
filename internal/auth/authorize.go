// ABOUTME: Scope authorization for already-authenticated identities
// ABOUTME: Separate from verification so 401 and 403 stay distinct

package auth

// Authorize checks that the identity holds the required scope, honoring the
// admin wildcard. Runs strictly after authentication: a missing scope is a
// 403 about permissions, never a 401 about credentials.
func Authorize(id *Identity, requiredScope string) *Error {
	if id.HasScope(requiredScope) {
		return nil
	}
	return errInsufficientScope(requiredScope, id.Scopes, id.Method)
}
