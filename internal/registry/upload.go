// ABOUTME: Agent definition upload endpoint (JSON body with YAML frontmatter)
// ABOUTME: Validates metadata consistency and upserts the agent record

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/carpdev/carp-registry/internal/auth"
	"github.com/carpdev/carp-registry/internal/store"
)

type uploadRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`
	Homepage    string   `json:"homepage"`
	Repository  string   `json:"repository"`
	License     string   `json:"license"`
}

type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type uploadResponse struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message"`
	Agent            *agentResponse    `json:"agent,omitempty"`
	ValidationErrors []validationError `json:"validation_errors,omitempty"`
}

// frontmatter is the YAML block expected at the top of agent definitions.
type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Version     string   `yaml:"version"`
	Tags        []string `yaml:"tags"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		writeError(w, http.StatusBadRequest, "bad_request", "Content-Type must be application/json")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON in request body")
		return
	}

	if verrs := validateUpload(&req); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, uploadResponse{
			Success:          false,
			Message:          "Validation failed",
			ValidationErrors: verrs,
		})
		return
	}

	identity := auth.MustIdentityFromContext(r.Context())

	// Reject uploads to an agent name owned by someone else.
	existing, err := s.store.GetAgent(r.Context(), req.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("agent lookup failed", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "agent lookup failed")
		return
	}
	if existing != nil && existing.UserID != identity.UserID.String() {
		writeError(w, http.StatusForbidden, "forbidden", "agent name is owned by another user")
		return
	}

	version := req.Version
	if version == "" {
		version = "1.0.0"
	}

	agent := &store.Agent{
		UserID:         identity.UserID.String(),
		Name:           req.Name,
		Description:    req.Description,
		Author:         authorFor(identity),
		CurrentVersion: version,
		Tags:           req.Tags,
		License:        req.License,
		Homepage:       req.Homepage,
		Repository:     req.Repository,
		Readme:         req.Content,
	}
	if err := s.ensureUser(r.Context(), identity); err != nil {
		s.logger.Error("user upsert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "saving agent failed")
		return
	}
	if err := s.store.UpsertAgent(r.Context(), agent); err != nil {
		s.logger.Error("agent upsert failed", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "saving agent failed")
		return
	}

	resp := toAgentResponse(agent)
	writeJSON(w, http.StatusCreated, uploadResponse{
		Success: true,
		Message: "Agent uploaded successfully",
		Agent:   &resp,
	})
}

func validateUpload(req *uploadRequest) []validationError {
	var errs []validationError
	add := func(field, message string) {
		errs = append(errs, validationError{Field: field, Message: message})
	}

	switch {
	case strings.TrimSpace(req.Name) == "":
		add("name", "Agent name cannot be empty")
	case !validAgentName(req.Name):
		add("name", "Agent name can only contain alphanumeric characters, hyphens, and underscores")
	case len(req.Name) > 100:
		add("name", "Agent name cannot exceed 100 characters")
	}

	switch {
	case strings.TrimSpace(req.Description) == "":
		add("description", "Description cannot be empty")
	case len(req.Description) > 1000:
		add("description", "Description cannot exceed 1000 characters")
	}

	switch {
	case strings.TrimSpace(req.Content) == "":
		add("content", "Content cannot be empty")
	case len(req.Content) > 1<<20:
		add("content", "Content size exceeds maximum allowed size (1MB)")
	default:
		errs = append(errs, validateFrontmatter(req)...)
	}

	if req.Version != "" {
		if !validVersion(req.Version) {
			add("version", "Version must be in semver format (e.g., 1.0.0)")
		}
	}

	for i, tag := range req.Tags {
		if strings.TrimSpace(tag) == "" {
			add(fmt.Sprintf("tags[%d]", i), "Tags cannot be empty")
		} else if len(tag) > 50 {
			add(fmt.Sprintf("tags[%d]", i), "Tags cannot exceed 50 characters")
		}
	}
	if len(req.Tags) > 20 {
		add("tags", "Cannot have more than 20 tags")
	}

	return errs
}

// validateFrontmatter checks that the content opens with a YAML frontmatter
// block whose name and description match the request metadata.
func validateFrontmatter(req *uploadRequest) []validationError {
	var errs []validationError

	if !strings.HasPrefix(req.Content, "---") {
		return []validationError{{
			Field:   "content",
			Message: "Content must contain YAML frontmatter starting with ---",
		}}
	}

	lines := strings.Split(req.Content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return []validationError{{
			Field:   "content",
			Message: "Invalid YAML frontmatter: missing closing ---",
		}}
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &fm); err != nil {
		return []validationError{{
			Field:   "content",
			Message: fmt.Sprintf("Invalid YAML frontmatter: %v", err),
		}}
	}

	if fm.Name != req.Name {
		errs = append(errs, validationError{
			Field:   "name",
			Message: fmt.Sprintf("Name mismatch: frontmatter contains %q but request contains %q", fm.Name, req.Name),
		})
	}
	if fm.Description != req.Description {
		errs = append(errs, validationError{
			Field:   "description",
			Message: fmt.Sprintf("Description mismatch: frontmatter contains %q but request contains %q", fm.Description, req.Description),
		})
	}
	return errs
}

func authorFor(id *auth.Identity) string {
	if id.Handle != "" {
		return id.Handle
	}
	if id.Email != "" {
		return id.Email
	}
	return "user-" + id.UserID.String()
}
