// ABOUTME: Tests for the HTTP middleware chain and JSON error responses
// ABOUTME: Uses httptest against a handler that echoes the context identity

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := MustIdentityFromContext(r.Context())
		w.Write([]byte(id.UserID.String()))
	})
}

func TestMiddlewareSuccess(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())
	userID := uuid.New()
	token := signToken(t, testSecret, validClaims(userID.String()))

	handler := Middleware(a, StrategySignedToken)(echoHandler(t))
	req := httptest.NewRequest("GET", "/api/v1/auth/keys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != userID.String() {
		t.Errorf("body = %q, want %q", rec.Body.String(), userID)
	}
}

func TestMiddlewareUnauthorizedResponse(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	handler := Middleware(a, StrategyAPIKey)(echoHandler(t))
	req := httptest.NewRequest("POST", "/api/v1/agents/upload", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Error   string         `json:"error"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != CodeMissingAuthentication {
		t.Errorf("error = %q", body.Error)
	}
	if body.Message == "" || body.Details == nil {
		t.Errorf("body = %+v", body)
	}
}

func TestRequireScopeForbidden(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())
	token := signToken(t, testSecret, validClaims(uuid.NewString()))

	// Signed tokens never hold the upload scope.
	handler := Middleware(a, StrategySignedToken)(
		RequireScope(ScopeUpload)(echoHandler(t)),
	)
	req := httptest.NewRequest("POST", "/upload", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	// 403 is about permissions, not credentials: no challenge header.
	if got := rec.Header().Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, want empty", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["error"] != CodeInsufficientScope {
		t.Errorf("error = %v", body["error"])
	}
}

func TestRequireScopePasses(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())
	token := signToken(t, testSecret, validClaims(uuid.NewString()))

	handler := Middleware(a, StrategySignedToken)(
		RequireScope(ScopeKeyCreate)(echoHandler(t)),
	)
	req := httptest.NewRequest("POST", "/api/v1/auth/keys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestErrorBodyNeverContainsCredential(t *testing.T) {
	a := newTestAuthenticator(t, newFakeStore())

	secretToken := signToken(t, "wrong-secret", validClaims(uuid.NewString()))
	handler := Middleware(a, StrategySignedToken)(echoHandler(t))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+secretToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), secretToken) {
		t.Error("error body leaks the presented credential")
	}
}
