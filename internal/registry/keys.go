// ABOUTME: API key management endpoints for signed-token users
// ABOUTME: The raw key appears exactly once in the creation response

package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/carpdev/carp-registry/internal/auth"
	"github.com/carpdev/carp-registry/internal/store"
)

type createKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type keyResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Scopes     []string   `json:"scopes"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toKeyResponse(k *store.APIKey) keyResponse {
	return keyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		Scopes:     k.Scopes,
		IsActive:   k.IsActive,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
		CreatedAt:  k.CreatedAt,
	}
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON in request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "key name cannot be empty")
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{auth.ScopeRead}
	}
	for _, scope := range req.Scopes {
		if !slices.Contains(auth.ValidKeyScopes, scope) {
			writeErrorDetails(w, http.StatusBadRequest, "invalid_scope",
				"requested scope is not grantable to API keys",
				map[string]any{"scope": scope, "valid_scopes": auth.ValidKeyScopes})
			return
		}
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusBadRequest, "bad_request", "expires_at is in the past")
		return
	}

	identity := auth.MustIdentityFromContext(r.Context())

	raw, err := auth.GenerateAPIKey()
	if err != nil {
		s.logger.Error("key generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "key generation failed")
		return
	}

	if err := s.ensureUser(r.Context(), identity); err != nil {
		s.logger.Error("user upsert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "creating key failed")
		return
	}

	key := &store.APIKey{
		UserID:    identity.UserID.String(),
		Name:      req.Name,
		Prefix:    auth.KeyPrefix(raw),
		KeyHash:   auth.HashAPIKey(raw),
		Scopes:    req.Scopes,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.store.CreateAPIKey(r.Context(), key); err != nil {
		s.logger.Error("key insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "creating key failed")
		return
	}

	s.logger.Info("api key created", "key_id", key.ID, "user_id", key.UserID, "scopes", key.Scopes)

	// The raw key is returned here and never stored or logged.
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     raw,
		"api_key": toKeyResponse(key),
		"warning": "Store this key securely. It will not be shown again.",
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	keys, err := s.store.ListAPIKeys(r.Context(), identity.UserID.String())
	if err != nil {
		s.logger.Error("key listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "listing keys failed")
		return
	}

	out := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": out})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())
	id := r.PathValue("id")

	err := s.store.DeleteAPIKey(r.Context(), id, identity.UserID.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Also returned for keys owned by other users, so existence is
			// not revealed.
			writeError(w, http.StatusNotFound, "not_found", "api key not found")
			return
		}
		s.logger.Error("key deletion failed", "key_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "deleting key failed")
		return
	}

	s.logger.Info("api key deleted", "key_id", id, "user_id", identity.UserID.String())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
