// ABOUTME: Package publish endpoint accepting gzipped tarballs with Carp.toml
// ABOUTME: Stores the package file, records the version, updates agent metadata

package registry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/carpdev/carp-registry/internal/auth"
	"github.com/carpdev/carp-registry/internal/store"
)

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/gzip") && !strings.HasPrefix(ct, "application/octet-stream") {
		writeError(w, http.StatusBadRequest, "bad_request", "Content-Type must be application/gzip")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		// MaxBytesReader reports oversized bodies through the read error.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorDetails(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				"package exceeds the maximum upload size",
				map[string]any{"max_bytes": maxErr.Limit})
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "reading request body failed")
		return
	}

	pkg, err := ExtractPackage(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_package", err.Error())
		return
	}
	manifest := pkg.Manifest

	identity := auth.MustIdentityFromContext(r.Context())

	existing, err := s.store.GetAgent(r.Context(), manifest.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("agent lookup failed", "name", manifest.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "agent lookup failed")
		return
	}
	if existing != nil && existing.UserID != identity.UserID.String() {
		writeError(w, http.StatusForbidden, "forbidden", "agent name is owned by another user")
		return
	}

	// Duplicates must be rejected before the file write, or a conflicting
	// publish would overwrite the stored tarball the recorded checksum
	// refers to.
	if existing != nil {
		_, err := s.store.GetVersion(r.Context(), manifest.Name, manifest.Version)
		if err == nil {
			writeErrorDetails(w, http.StatusConflict, "version_exists",
				"this version has already been published",
				map[string]any{"name": manifest.Name, "version": manifest.Version})
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("version lookup failed", "name", manifest.Name, "error", err)
			writeError(w, http.StatusInternalServerError, "database_error", "publishing failed")
			return
		}
	}

	relPath, checksum, err := s.files.Save(manifest.Name, manifest.Version, data)
	if err != nil {
		s.logger.Error("storing package failed", "name", manifest.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "storing package failed")
		return
	}

	if err := s.ensureUser(r.Context(), identity); err != nil {
		s.logger.Error("user upsert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "publishing failed")
		return
	}

	agent := &store.Agent{
		UserID:         identity.UserID.String(),
		Name:           manifest.Name,
		Description:    manifest.Description,
		Author:         manifest.Author,
		CurrentVersion: manifest.Version,
		Tags:           manifest.Tags,
		License:        manifest.License,
		Homepage:       manifest.Homepage,
		Repository:     manifest.Repository,
		Readme:         pkg.Readme,
	}
	if existing != nil {
		agent.ID = existing.ID
		agent.CreatedAt = existing.CreatedAt
	}
	if err := s.store.UpsertAgent(r.Context(), agent); err != nil {
		s.logger.Error("agent upsert failed", "name", manifest.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "publishing failed")
		return
	}

	version := &store.AgentVersion{
		AgentID:   agent.ID,
		Version:   manifest.Version,
		Checksum:  checksum,
		SizeBytes: int64(len(data)),
		FileName:  manifest.Name + "-" + manifest.Version + ".tgz",
		FilePath:  relPath,
	}
	if err := s.store.PublishVersion(r.Context(), version); err != nil {
		if errors.Is(err, store.ErrDuplicateVersion) {
			writeErrorDetails(w, http.StatusConflict, "version_exists",
				"this version has already been published",
				map[string]any{"name": manifest.Name, "version": manifest.Version})
			return
		}
		s.logger.Error("version insert failed", "name", manifest.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "publishing failed")
		return
	}

	s.logger.Info("package published",
		"name", manifest.Name, "version", manifest.Version, "size", len(data))

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"message":  "Package published successfully",
		"name":     manifest.Name,
		"version":  manifest.Version,
		"checksum": checksum,
	})
}

// ensureUser guarantees a user row exists before rows referencing it are
// written. API-key identities are not synced by the auth layer, so publish
// and upload do it here.
func (s *Server) ensureUser(ctx context.Context, id *auth.Identity) error {
	return s.store.UpsertUser(ctx, &store.User{
		ID:     id.UserID.String(),
		Email:  id.Email,
		Handle: id.Handle,
	})
}
