// ABOUTME: Per-endpoint credential-kind policy and header extraction
// ABOUTME: Each route is statically tagged with exactly one strategy

package auth

import (
	"net/http"
	"strings"
)

// Strategy is the credential-kind policy of an endpoint. The source design
// also had an accept-either mode; it reintroduced the token-confusion risk
// the split strategies exist to prevent and is intentionally not carried.
type Strategy int

const (
	// StrategySignedToken accepts only signed tokens (frontend endpoints,
	// such as API key management).
	StrategySignedToken Strategy = iota
	// StrategyAPIKey accepts only API keys (CLI/data-plane endpoints).
	StrategyAPIKey
)

func (s Strategy) String() string {
	if s == StrategyAPIKey {
		return "api_key_only"
	}
	return "signed_token_only"
}

func (s Strategy) expectedKind() Kind {
	if s == StrategyAPIKey {
		return KindAPIKey
	}
	return KindSignedToken
}

func (s Strategy) acceptedMethods() []string {
	if s == StrategyAPIKey {
		return []string{"api_key"}
	}
	return []string{"signed_token"}
}

func (s Strategy) headerFormats() []string {
	if s == StrategyAPIKey {
		return []string{
			"Authorization: Bearer <api_key>",
			"X-API-Key: <api_key>",
		}
	}
	return []string{"Authorization: Bearer <token>"}
}

const (
	authorizationHeader = "Authorization"
	apiKeyHeader        = "X-API-Key"
	bearerScheme        = "Bearer "
)

// ExtractCredential pulls the bearer credential out of the request headers.
// The Authorization header takes precedence; the X-API-Key header is
// consulted only for endpoints that accept API keys. Returns false when no
// credential is present or the Authorization header does not use the Bearer
// scheme.
func ExtractCredential(h http.Header, s Strategy) (string, bool) {
	if v := h.Get(authorizationHeader); v != "" {
		if token, ok := strings.CutPrefix(v, bearerScheme); ok && token != "" {
			return token, true
		}
	}
	if s == StrategyAPIKey {
		if v := h.Get(apiKeyHeader); v != "" {
			return v, true
		}
	}
	return "", false
}
