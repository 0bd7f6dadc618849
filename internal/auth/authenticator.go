// ABOUTME: Authenticator orchestrates extract, classify, enforce, verify, sync
// ABOUTME: The single entry point request middleware calls per protected route

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/carpdev/carp-registry/internal/store"
)

// Store is the narrow persistence surface the authenticator needs. The full
// store.Store satisfies it.
type Store interface {
	LookupAPIKey(ctx context.Context, hash string) (*store.APIKey, error)
	TouchAPIKeyLastUsed(ctx context.Context, hash string) error
	UpsertUser(ctx context.Context, u *store.User) error
}

// Authenticator verifies request credentials and produces identities. One
// instance is shared across all routes; per-route policy arrives as the
// Strategy argument.
type Authenticator struct {
	cfg    *Config
	store  Store
	logger *slog.Logger

	// now and spawn are replaceable in tests. spawn runs detached work
	// (last-used touches, identity sync) that must never block or fail the
	// request.
	now   func() time.Time
	spawn func(func())
}

// NewAuthenticator creates an authenticator. The store may be nil only for an
// offline config.
func NewAuthenticator(cfg *Config, st Store, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		cfg:    cfg,
		store:  st,
		logger: logger.With("component", "auth"),
		now:    time.Now,
		spawn:  func(fn func()) { go fn() },
	}
}

// Authenticate runs the full verification pipeline for one request:
// extract the credential, classify its kind, enforce the endpoint strategy,
// verify with the matching verifier, and kick off identity sync. The strategy
// check happens before any verification, so a wrong-kind credential is
// rejected without touching the store or the signing secret.
func (a *Authenticator) Authenticate(ctx context.Context, h http.Header, strategy Strategy) (*Identity, *Error) {
	credential, ok := ExtractCredential(h, strategy)
	if !ok {
		return nil, errMissingAuthentication(strategy)
	}

	kind := Classify(credential)
	if kind != strategy.expectedKind() {
		a.logger.Debug("credential kind rejected by endpoint strategy",
			"received", kind.String(), "strategy", strategy.String())
		return nil, errInvalidAuthMethod(kind, strategy)
	}

	var identity *Identity
	var authErr *Error
	switch kind {
	case KindAPIKey:
		identity, authErr = a.verifyAPIKey(ctx, credential)
	default:
		identity, authErr = a.verifySignedToken(credential)
	}
	if authErr != nil {
		a.logger.Debug("authentication failed",
			"kind", kind.String(), "code", authErr.Code)
		return nil, authErr
	}

	if _, ok := identity.Method.(MethodSignedToken); ok {
		a.syncIdentity(identity)
	}
	return identity, nil
}
