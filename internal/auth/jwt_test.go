// ABOUTME: Tests for signed token verification edge cases
// ABOUTME: Covers expiry details, audience, subject format and signature checks

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func authSignedToken(t *testing.T, a *Authenticator, token string) (*Identity, *Error) {
	t.Helper()
	return a.Authenticate(context.Background(), bearerHeader(token), StrategySignedToken)
}

func TestExpiredTokenDetails(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())
	fixed := time.Now()
	a.now = func() time.Time { return fixed }

	claims := validClaims(uuid.NewString())
	claims.ExpiresAt = jwt.NewNumericDate(fixed.Add(-90 * time.Second))
	token := signToken(t, testSecret, claims)

	_, authErr := authSignedToken(t, a, token)
	if authErr == nil {
		t.Fatal("expected error")
	}
	if authErr.Code != CodeExpiredSignedToken {
		t.Fatalf("code = %q, want %q", authErr.Code, CodeExpiredSignedToken)
	}
	ago, ok := authErr.Details["expired_seconds_ago"].(int64)
	if !ok {
		t.Fatalf("expired_seconds_ago missing or wrong type: %+v", authErr.Details)
	}
	if ago != 90 {
		t.Errorf("expired_seconds_ago = %d, want 90", ago)
	}
	if authErr.Details["expired_at"] != claims.ExpiresAt.Unix() {
		t.Errorf("expired_at = %v", authErr.Details["expired_at"])
	}
}

func TestTokenExpiredOneSecondAgo(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())
	fixed := time.Now()
	a.now = func() time.Time { return fixed }

	claims := validClaims(uuid.NewString())
	claims.ExpiresAt = jwt.NewNumericDate(fixed.Add(-time.Second))
	token := signToken(t, testSecret, claims)

	if _, authErr := authSignedToken(t, a, token); authErr == nil || authErr.Code != CodeExpiredSignedToken {
		t.Fatalf("got %v, want expired_signed_token", authErr)
	}
}

func TestWrongSignature(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	token := signToken(t, "some-other-secret", validClaims(uuid.NewString()))
	_, authErr := authSignedToken(t, a, token)
	if authErr == nil || authErr.Code != CodeInvalidSignedToken {
		t.Fatalf("got %v, want invalid_signed_token", authErr)
	}
}

func TestWrongAudience(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	claims := validClaims(uuid.NewString())
	claims.Audience = jwt.ClaimStrings{"something-else"}
	token := signToken(t, testSecret, claims)

	_, authErr := authSignedToken(t, a, token)
	if authErr == nil || authErr.Code != CodeInvalidSignedToken {
		t.Fatalf("got %v, want invalid_signed_token", authErr)
	}
}

func TestMissingExpiryRejected(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	claims := validClaims(uuid.NewString())
	claims.ExpiresAt = nil
	token := signToken(t, testSecret, claims)

	if _, authErr := authSignedToken(t, a, token); authErr == nil {
		t.Fatal("token without expiry was accepted")
	}
}

func TestNonUUIDSubject(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	token := signToken(t, testSecret, validClaims("service-account-7"))
	_, authErr := authSignedToken(t, a, token)
	if authErr == nil {
		t.Fatal("expected error")
	}
	if authErr.Code != CodeInvalidSubject {
		t.Errorf("code = %q, want %q", authErr.Code, CodeInvalidSubject)
	}
	if authErr.Details["provided_subject"] != "service-account-7" {
		t.Errorf("details = %+v", authErr.Details)
	}
}

func TestUnsignedAlgorithmRejected(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(uuid.NewString())).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, authErr := authSignedToken(t, a, token); authErr == nil || authErr.Code != CodeInvalidSignedToken {
		t.Fatalf("got %v, want invalid_signed_token", authErr)
	}
}

func TestGarbageToken(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	if _, authErr := authSignedToken(t, a, "not-a-jwt"); authErr == nil || authErr.Code != CodeInvalidSignedToken {
		t.Fatalf("got %v, want invalid_signed_token", authErr)
	}
}

func TestHandleFromUserMetadata(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	claims := validClaims(uuid.NewString())
	claims.UserMetadata = map[string]any{"user_name": "carpfan"}
	token := signToken(t, testSecret, claims)

	id, authErr := authSignedToken(t, a, token)
	if authErr != nil {
		t.Fatalf("Authenticate: %v", authErr)
	}
	if id.Handle != "carpfan" {
		t.Errorf("Handle = %q, want %q", id.Handle, "carpfan")
	}
}
