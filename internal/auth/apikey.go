// ABOUTME: Opaque API key generation, hashing and store-backed verification
// ABOUTME: Keys are carp_-prefixed, stored only as SHA-256 hashes

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carpdev/carp-registry/internal/store"
	"github.com/google/uuid"
)

// offlineKeyID is the fixed key identifier attached to the offline API key
// identity, distinct from the offline user ID.
var offlineKeyID = uuid.MustParse("660e8400-e29b-41d4-a716-446655440000")

// offlineKeyScopes are granted to the offline API key identity. Broad on
// purpose so local development exercises every data-plane endpoint.
var offlineKeyScopes = []string{ScopeRead, ScopeWrite, ScopeUpload, ScopePublish, ScopeAdmin}

const (
	keySegmentLength = 8
	keySegments      = 3
	keyCharset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// PrefixDisplayLength is how many leading characters of a key are kept
	// in plaintext for display in key listings.
	PrefixDisplayLength = 12
)

// GenerateAPIKey mints a new random API key of the form
// carp_xxxxxxxx_xxxxxxxx_xxxxxxxx with alphanumeric segments. The raw key is
// returned exactly once; callers must hash it before storage.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, keySegmentLength*keySegments)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}

	var b strings.Builder
	b.WriteString(apiKeyPrefix)
	for i, c := range buf {
		if i > 0 && i%keySegmentLength == 0 {
			b.WriteByte('_')
		}
		b.WriteByte(keyCharset[int(c)%len(keyCharset)])
	}
	return b.String(), nil
}

// HashAPIKey returns the hex-encoded SHA-256 digest of a raw key. This is the
// only form of a key that ever touches the store or the logs.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the display prefix of a raw key.
func KeyPrefix(raw string) string {
	if len(raw) < PrefixDisplayLength {
		return raw
	}
	return raw[:PrefixDisplayLength]
}

// verifyAPIKey hashes the key, resolves it through the store and builds the
// caller identity. A missing or invalid key and a revoked/expired key are
// indistinguishable to the caller; only infrastructure failures surface as a
// distinct retryable error.
func (a *Authenticator) verifyAPIKey(ctx context.Context, raw string) (*Identity, *Error) {
	if a.cfg.Offline() {
		return &Identity{
			UserID: offlineUserID,
			Method: MethodAPIKey{KeyID: offlineKeyID},
			Scopes: offlineKeyScopes,
		}, nil
	}

	hash := HashAPIKey(raw)
	key, err := a.store.LookupAPIKey(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errInvalidAPIKey()
		}
		a.logger.Error("api key lookup failed", "error", err)
		return nil, errDatabaseError()
	}
	if !key.IsValid {
		return nil, errInvalidAPIKey()
	}

	userID, err := uuid.Parse(key.UserID)
	if err != nil {
		a.logger.Error("stored api key has malformed user id", "key_id", key.ID)
		return nil, errInvalidAPIKey()
	}
	keyID, err := uuid.Parse(key.ID)
	if err != nil {
		keyID = uuid.Nil
	}

	// Recording last-used is best effort and detached from the request:
	// verification latency and outcome never depend on it.
	a.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.TouchAPIKeyLastUsed(ctx, hash); err != nil {
			a.logger.Warn("failed to record api key usage", "key_id", key.ID, "error", err)
		}
	})

	return &Identity{
		UserID:    userID,
		Method:    MethodAPIKey{KeyID: keyID},
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt,
	}, nil
}
