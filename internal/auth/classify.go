// ABOUTME: Shape-based classification of bearer credentials into their kind
// ABOUTME: Pure routing decision, deliberately free of I/O and crypto

package auth

import "strings"

// Kind is the classified shape of a bearer credential.
type Kind int

const (
	// KindSignedToken is the default for anything that is not an API key.
	KindSignedToken Kind = iota
	// KindAPIKey matches the carp_xxxxxxxx_xxxxxxxx_xxxxxxxx format.
	KindAPIKey
)

func (k Kind) String() string {
	if k == KindAPIKey {
		return "api_key"
	}
	return "signed_token"
}

// apiKeyPrefix is the fixed literal prefix of every issued API key.
const apiKeyPrefix = "carp_"

// Classify decides the credential kind from shape alone. A credential is an
// API key iff it starts with "carp_" and contains exactly three underscores
// (the prefix underscore plus two segment separators). Everything else is
// treated as a signed token: an ambiguous or malformed key then fails the
// stricter JWT checks instead of being silently misrouted. This is a routing
// decision, not a trust decision; no verification happens here.
func Classify(token string) Kind {
	if strings.HasPrefix(token, apiKeyPrefix) && strings.Count(token, "_") == 3 {
		return KindAPIKey
	}
	return KindSignedToken
}
