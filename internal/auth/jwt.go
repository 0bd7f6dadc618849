// ABOUTME: Signed token (JWT) verification with HS256 and audience checks
// ABOUTME: Returns a fixed development identity when running offline

package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// offlineUserID is the fixed development identity returned by every verifier
// in offline mode. Stable across restarts so local data stays attached to one
// account.
var offlineUserID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

// signedTokenScopes are granted to every verified signed token. Scopes for
// tokens come from the method, not from claims: a token proves who the caller
// is, while fine-grained permissions belong to API keys.
var signedTokenScopes = []string{ScopeRead, ScopeKeyCreate, ScopeKeyManage}

type signedTokenClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// handle pulls a display handle out of the token's metadata claims, if any.
func (c *signedTokenClaims) handle() string {
	for _, key := range []string{"handle", "user_name", "preferred_username"} {
		if v, ok := c.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// verifySignedToken validates the token signature and claims and builds the
// caller identity. The signing algorithm is pinned to HS256; the audience
// must match the configured value.
func (a *Authenticator) verifySignedToken(token string) (*Identity, *Error) {
	if a.cfg.Offline() {
		return &Identity{
			UserID: offlineUserID,
			Method: MethodSignedToken{Issuer: "offline"},
			Scopes: signedTokenScopes,
			Email:  "dev@localhost",
			Handle: "dev",
		}, nil
	}

	claims := &signedTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return a.cfg.jwtSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(a.cfg.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && claims.ExpiresAt != nil {
			return nil, errExpiredSignedToken(claims.ExpiresAt.Unix(), a.now().Unix())
		}
		return nil, errInvalidSignedToken(tokenFailureReason(err))
	}

	// Parsing already enforced expiry, but the claim is re-checked against
	// the same clock so a library behavior change cannot widen the window.
	now := a.now()
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, errExpiredSignedToken(claims.ExpiresAt.Unix(), now.Unix())
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errInvalidSubject(claims.Subject)
	}

	return &Identity{
		UserID: userID,
		Method: MethodSignedToken{Issuer: claims.Issuer},
		Scopes: signedTokenScopes,
		Email:  claims.Email,
		Handle: claims.handle(),
	}, nil
}

// tokenFailureReason maps library errors to the stable reason strings in the
// error body. Never includes token material.
func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token structure"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid signature"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "wrong audience"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token not valid yet"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	default:
		return "verification failed"
	}
}
