// ABOUTME: Tests for the full authentication pipeline and strategy enforcement
// ABOUTME: Includes a recording fake store to assert on store interaction

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/carpdev/carp-registry/internal/store"
)

const testSecret = "test-signing-secret"

// fakeStore records every call so tests can assert which store operations
// ran (or did not run) during authentication.
type fakeStore struct {
	mu          sync.Mutex
	keys        map[string]*store.APIKey
	lookupErr   error
	lookupCalls int
	touched     []string
	upserted    []*store.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]*store.APIKey)}
}

func (f *fakeStore) LookupAPIKey(ctx context.Context, hash string) (*store.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	key, ok := f.keys[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return key, nil
}

func (f *fakeStore) TouchAPIKeyLastUsed(ctx context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, hash)
	return nil
}

func (f *fakeStore) UpsertUser(ctx context.Context, u *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, u)
	return nil
}

// newTestAuthenticator builds a connected authenticator whose detached work
// runs synchronously so tests can observe it deterministically.
func newTestAuthenticator(t *testing.T, st Store) *Authenticator {
	t.Helper()
	cfg, err := ConnectedConfig(testSecret)
	if err != nil {
		t.Fatalf("ConnectedConfig: %v", err)
	}
	a := NewAuthenticator(cfg, st, slog.Default())
	a.spawn = func(fn func()) { fn() }
	return a
}

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func validClaims(sub string) *signedTokenClaims {
	return &signedTokenClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "test",
		},
	}
}

func bearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestAuthenticateSignedTokenSuccess(t *testing.T) {
	st := newFakeStore()
	a := newTestAuthenticator(t, st)

	userID := uuid.New()
	token := signToken(t, testSecret, validClaims(userID.String()))

	identity, authErr := a.Authenticate(context.Background(), bearerHeader(token), StrategySignedToken)
	if authErr != nil {
		t.Fatalf("Authenticate: %v", authErr)
	}
	if identity.UserID != userID {
		t.Errorf("UserID = %v, want %v", identity.UserID, userID)
	}
	if _, ok := identity.Method.(MethodSignedToken); !ok {
		t.Errorf("Method = %T, want MethodSignedToken", identity.Method)
	}
	for _, scope := range []string{ScopeRead, ScopeKeyCreate, ScopeKeyManage} {
		if !identity.HasScope(scope) {
			t.Errorf("missing scope %q", scope)
		}
	}
	if identity.HasScope(ScopeUpload) {
		t.Error("signed token identity should not hold upload scope")
	}

	// Successful token verification reconciles the user row.
	if len(st.upserted) != 1 || st.upserted[0].ID != userID.String() {
		t.Errorf("upserted users = %+v, want one row for %s", st.upserted, userID)
	}
	if st.upserted[0].Email != "user@example.com" {
		t.Errorf("synced email = %q", st.upserted[0].Email)
	}
}

func TestAuthenticateAPIKeyOnSignedTokenEndpoint(t *testing.T) {
	st := newFakeStore()
	a := newTestAuthenticator(t, st)

	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}

	_, authErr := a.Authenticate(context.Background(), bearerHeader(key), StrategySignedToken)
	if authErr == nil {
		t.Fatal("expected error")
	}
	if authErr.Code != CodeInvalidAuthMethod {
		t.Errorf("code = %q, want %q", authErr.Code, CodeInvalidAuthMethod)
	}
	if authErr.Status != 401 {
		t.Errorf("status = %d, want 401", authErr.Status)
	}
	if authErr.Details["received_token_type"] != "api_key" {
		t.Errorf("details = %+v", authErr.Details)
	}
	// Strategy enforcement precedes verification: the store is never hit.
	if st.lookupCalls != 0 {
		t.Errorf("lookupCalls = %d, want 0", st.lookupCalls)
	}
}

func TestAuthenticateSignedTokenOnAPIKeyEndpoint(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	token := signToken(t, testSecret, validClaims(uuid.NewString()))
	_, authErr := a.Authenticate(context.Background(), bearerHeader(token), StrategyAPIKey)
	if authErr == nil {
		t.Fatal("expected error")
	}
	if authErr.Code != CodeInvalidAuthMethod {
		t.Errorf("code = %q, want %q", authErr.Code, CodeInvalidAuthMethod)
	}
	if authErr.Details["expected_token_type"] != "api_key" {
		t.Errorf("details = %+v", authErr.Details)
	}
}

func TestAuthenticateMissingCredential(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	for _, strategy := range []Strategy{StrategySignedToken, StrategyAPIKey} {
		_, authErr := a.Authenticate(context.Background(), http.Header{}, strategy)
		if authErr == nil {
			t.Fatalf("strategy %v: expected error", strategy)
		}
		if authErr.Code != CodeMissingAuthentication {
			t.Errorf("strategy %v: code = %q", strategy, authErr.Code)
		}
		if authErr.Status != 401 {
			t.Errorf("strategy %v: status = %d", strategy, authErr.Status)
		}
		if _, ok := authErr.Details["header_formats"]; !ok {
			t.Errorf("strategy %v: missing header_formats detail", strategy)
		}
	}
}

func TestAuthenticateMalformedAuthorizationHeader(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	h := http.Header{}
	h.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, authErr := a.Authenticate(context.Background(), h, StrategySignedToken)
	if authErr == nil || authErr.Code != CodeMissingAuthentication {
		t.Fatalf("got %v, want missing_authentication", authErr)
	}
}

func TestAuthenticateAPIKeySuccess(t *testing.T) {
	st := newFakeStore()
	a := newTestAuthenticator(t, st)

	raw, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	hash := HashAPIKey(raw)
	userID := uuid.New()
	keyID := uuid.New()
	st.keys[hash] = &store.APIKey{
		ID:      keyID.String(),
		UserID:  userID.String(),
		KeyHash: hash,
		Scopes:  []string{ScopeRead, ScopeUpload},
		IsValid: true,
	}

	identity, authErr := a.Authenticate(context.Background(), bearerHeader(raw), StrategyAPIKey)
	if authErr != nil {
		t.Fatalf("Authenticate: %v", authErr)
	}
	if identity.UserID != userID {
		t.Errorf("UserID = %v, want %v", identity.UserID, userID)
	}
	m, ok := identity.Method.(MethodAPIKey)
	if !ok || m.KeyID != keyID {
		t.Errorf("Method = %+v, want MethodAPIKey{%v}", identity.Method, keyID)
	}
	if !identity.HasScope(ScopeUpload) || identity.HasScope(ScopePublish) {
		t.Errorf("scopes = %v", identity.Scopes)
	}
	// Usage is recorded against the hash, never the raw key.
	if len(st.touched) != 1 || st.touched[0] != hash {
		t.Errorf("touched = %v, want [%s]", st.touched, hash)
	}
	// API key verification does not sync users.
	if len(st.upserted) != 0 {
		t.Errorf("upserted = %+v, want none", st.upserted)
	}
}

func TestAuthenticateAPIKeyViaXAPIKeyHeader(t *testing.T) {
	st := newFakeStore()
	a := newTestAuthenticator(t, st)

	raw, _ := GenerateAPIKey()
	hash := HashAPIKey(raw)
	st.keys[hash] = &store.APIKey{
		ID:      uuid.NewString(),
		UserID:  uuid.NewString(),
		KeyHash: hash,
		Scopes:  []string{ScopeRead},
		IsValid: true,
	}

	h := http.Header{}
	h.Set("X-API-Key", raw)
	if _, authErr := a.Authenticate(context.Background(), h, StrategyAPIKey); authErr != nil {
		t.Fatalf("Authenticate: %v", authErr)
	}
	// The same header is not honored on signed-token endpoints.
	if _, authErr := a.Authenticate(context.Background(), h, StrategySignedToken); authErr == nil ||
		authErr.Code != CodeMissingAuthentication {
		t.Fatalf("signed-token endpoint accepted X-API-Key: %v", authErr)
	}
}

func TestAuthenticateUnknownAPIKey(t *testing.T) {
	st := newFakeStore()
	a := newTestAuthenticator(t, st)

	raw, _ := GenerateAPIKey()
	_, authErr := a.Authenticate(context.Background(), bearerHeader(raw), StrategyAPIKey)
	if authErr == nil {
		t.Fatal("expected error")
	}
	if authErr.Code != CodeInvalidAPIKey || authErr.Status != 401 {
		t.Errorf("got %q/%d, want invalid_api_key/401", authErr.Code, authErr.Status)
	}
	if len(st.touched) != 0 {
		t.Errorf("touched = %v, want none", st.touched)
	}
}

func TestAuthenticateRevokedAPIKey(t *testing.T) {
	st := newFakeStore()
	a := newTestAuthenticator(t, st)

	raw, _ := GenerateAPIKey()
	hash := HashAPIKey(raw)
	st.keys[hash] = &store.APIKey{
		ID:      uuid.NewString(),
		UserID:  uuid.NewString(),
		KeyHash: hash,
		Scopes:  []string{ScopeRead},
		IsValid: false, // revoked or expired
	}

	_, authErr := a.Authenticate(context.Background(), bearerHeader(raw), StrategyAPIKey)
	if authErr == nil || authErr.Code != CodeInvalidAPIKey {
		t.Fatalf("got %v, want invalid_api_key", authErr)
	}
}

func TestAuthenticateStoreFailureIsDistinct(t *testing.T) {
	st := newFakeStore()
	st.lookupErr = errors.New("connection refused")
	a := newTestAuthenticator(t, st)

	raw, _ := GenerateAPIKey()
	_, authErr := a.Authenticate(context.Background(), bearerHeader(raw), StrategyAPIKey)
	if authErr == nil {
		t.Fatal("expected error")
	}
	if authErr.Code != CodeDatabaseError {
		t.Errorf("code = %q, want %q", authErr.Code, CodeDatabaseError)
	}
	if authErr.Status != 500 {
		t.Errorf("status = %d, want 500", authErr.Status)
	}
	if authErr.Details["retryable"] != true {
		t.Errorf("details = %+v", authErr.Details)
	}
}

func TestOfflineIdentities(t *testing.T) {
	a := NewAuthenticator(OfflineConfig(), nil, slog.Default())
	a.spawn = func(fn func()) { fn() }

	id, authErr := a.Authenticate(context.Background(), bearerHeader("anything-at-all"), StrategySignedToken)
	if authErr != nil {
		t.Fatalf("signed token: %v", authErr)
	}
	if id.UserID != offlineUserID {
		t.Errorf("UserID = %v, want %v", id.UserID, offlineUserID)
	}

	key, authErr := a.Authenticate(context.Background(), bearerHeader("carp_aaaaaaaa_bbbbbbbb_cccccccc"), StrategyAPIKey)
	if authErr != nil {
		t.Fatalf("api key: %v", authErr)
	}
	if key.UserID != offlineUserID {
		t.Errorf("UserID = %v, want %v", key.UserID, offlineUserID)
	}
	m, ok := key.Method.(MethodAPIKey)
	if !ok || m.KeyID != offlineKeyID {
		t.Errorf("Method = %+v, want MethodAPIKey{%v}", key.Method, offlineKeyID)
	}
	for _, scope := range []string{ScopeRead, ScopeWrite, ScopeUpload, ScopePublish, ScopeDelete} {
		if !key.HasScope(scope) {
			t.Errorf("offline key missing scope %q", scope)
		}
	}
	// Missing credentials still fail offline.
	if _, authErr := a.Authenticate(context.Background(), http.Header{}, StrategyAPIKey); authErr == nil {
		t.Error("offline mode accepted a request with no credential")
	}
	// So does strategy enforcement.
	if _, authErr := a.Authenticate(context.Background(), bearerHeader("carp_a_b_c"), StrategySignedToken); authErr == nil {
		t.Error("offline mode ignored the endpoint strategy")
	}
}

func TestConnectedConfigRejectsEmptySecret(t *testing.T) {
	if _, err := ConnectedConfig(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
