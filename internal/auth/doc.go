// Package auth provides authentication and authorization for carp-registry.
//
// # Credential Kinds
//
// The registry accepts two incompatible bearer credential kinds:
//
//   - API keys: opaque strings of the form carp_xxxxxxxx_xxxxxxxx_xxxxxxxx.
//     The registry never stores the raw key; it resolves a SHA-256 hash of
//     the key against the store. API keys are the CLI/data-plane identity.
//
//   - Signed tokens: HS256 JWTs verified locally against the configured
//     secret, with audience and expiry checks. Signed tokens are the
//     frontend/administrative identity and are the only credential kind
//     allowed to create or manage API keys.
//
// Classify decides the kind from the string shape alone. Ambiguous inputs
// default to the signed-token path so that a malformed API key fails the
// stricter JWT checks instead of being misrouted.
//
// # Strategies
//
// Every endpoint is tagged with exactly one Strategy: StrategySignedToken or
// StrategyAPIKey. A credential whose classified kind does not match the
// endpoint's strategy is rejected before any verification runs. There is no
// accept-either mode; endpoints that need both kinds expose two routes.
//
// # Offline Mode
//
// With OfflineConfig the verifiers return fixed development identities and
// never touch the store. ConnectedConfig refuses empty secrets, so the
// development identities are unreachable once real verification material is
// configured.
//
// # Request Flow
//
//	ExtractCredential -> Classify -> strategy check -> verify -> Authorize
//
// Middleware wires the flow into net/http handlers and attaches the resulting
// Identity to the request context via WithIdentity/IdentityFromContext.
package auth
