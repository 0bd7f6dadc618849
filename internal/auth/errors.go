// ABOUTME: Structured authentication error type with machine-readable codes
// ABOUTME: Maps each failure mode to its HTTP status and JSON body shape

package auth

import "fmt"

// Error codes surfaced to callers. Codes are part of the wire contract and
// must not change between releases.
const (
	CodeMissingAuthentication = "missing_authentication"
	CodeInvalidAuthMethod     = "invalid_auth_method"
	CodeInvalidSignedToken    = "invalid_signed_token"
	CodeExpiredSignedToken    = "expired_signed_token"
	CodeInvalidSubject        = "invalid_subject"
	CodeInvalidAPIKey         = "invalid_api_key"
	CodeDatabaseError         = "database_error"
	CodeInsufficientScope     = "insufficient_scope"
)

// Error is a structured authentication or authorization failure. It is
// serialized as the JSON error body {error, message, details}.
type Error struct {
	Code    string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth: %s: %s", e.Code, e.Message)
}

func newError(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) withDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func errMissingAuthentication(s Strategy) *Error {
	var msg string
	switch s {
	case StrategySignedToken:
		msg = "signed token authentication required, log in through the web interface"
	default:
		msg = "API key authentication required, create a key through the web interface or use an existing one"
	}
	return newError(401, CodeMissingAuthentication, msg).withDetails(map[string]any{
		"accepted_methods": s.acceptedMethods(),
		"header_formats":   s.headerFormats(),
	})
}

func errInvalidAuthMethod(got Kind, s Strategy) *Error {
	var msg string
	switch s {
	case StrategySignedToken:
		msg = "API keys are not allowed for this endpoint, use signed token authentication"
	default:
		msg = "signed tokens are not allowed for this endpoint, use API key authentication"
	}
	return newError(401, CodeInvalidAuthMethod, msg).withDetails(map[string]any{
		"received_token_type": got.String(),
		"expected_token_type": s.expectedKind().String(),
	})
}

func errInvalidSignedToken(reason string) *Error {
	return newError(401, CodeInvalidSignedToken, "invalid signed token: "+reason).withDetails(map[string]any{
		"common_causes": []string{
			"token expired",
			"invalid signature",
			"wrong audience",
			"malformed token structure",
		},
	})
}

func errExpiredSignedToken(expiredAt, now int64) *Error {
	return newError(401, CodeExpiredSignedToken, "signed token has expired").withDetails(map[string]any{
		"expired_at":          expiredAt,
		"current_time":        now,
		"expired_seconds_ago": now - expiredAt,
	})
}

func errInvalidSubject(subject string) *Error {
	return newError(401, CodeInvalidSubject, "token subject is not a valid user ID").withDetails(map[string]any{
		"provided_subject": subject,
		"expected_format":  "UUID",
	})
}

func errInvalidAPIKey() *Error {
	return newError(401, CodeInvalidAPIKey, "invalid or expired API key")
}

func errDatabaseError() *Error {
	// The body stays generic so store internals never leak to clients; the
	// underlying error is logged at the call site.
	return newError(500, CodeDatabaseError, "failed to verify API key against the store").withDetails(map[string]any{
		"retryable": true,
	})
}

func errInsufficientScope(required string, held []string, m Method) *Error {
	return newError(403, CodeInsufficientScope,
		fmt.Sprintf("required scope %q not found in caller permissions", required),
	).withDetails(map[string]any{
		"required_scope": required,
		"user_scopes":    held,
		"auth_method":    MethodName(m),
	})
}
