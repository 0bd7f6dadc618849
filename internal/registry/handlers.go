// ABOUTME: Public read endpoints: search, latest, trending, detail, download
// ABOUTME: Download recording is best effort and detached from the response

package registry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carpdev/carp-registry/internal/metrics"
	"github.com/carpdev/carp-registry/internal/store"
)

type agentResponse struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Description   string    `json:"description"`
	Author        string    `json:"author"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DownloadCount int64     `json:"download_count"`
	Tags          []string  `json:"tags"`
	Homepage      string    `json:"homepage,omitempty"`
	Repository    string    `json:"repository,omitempty"`
	License       string    `json:"license,omitempty"`
}

type agentDetailResponse struct {
	agentResponse
	Readme     string `json:"readme,omitempty"`
	ReadmeHTML string `json:"readme_html,omitempty"`
}

func toAgentResponse(a *store.Agent) agentResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return agentResponse{
		Name:          a.Name,
		Version:       a.CurrentVersion,
		Description:   a.Description,
		Author:        a.Author,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		DownloadCount: a.DownloadCount,
		Tags:          tags,
		Homepage:      a.Homepage,
		Repository:    a.Repository,
		License:       a.License,
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.SearchParams{
		Query:  q.Get("q"),
		Author: q.Get("author"),
		Sort:   q.Get("sort"),
	}
	if tags := q.Get("tags"); tags != "" {
		params.Tags = strings.Split(tags, ",")
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))
	params.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage < 1 || params.PerPage > 100 {
		params.PerPage = 20
	}

	result, err := s.store.SearchAgents(r.Context(), params)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "search failed")
		return
	}

	agents := make([]agentResponse, 0, len(result.Agents))
	for _, a := range result.Agents {
		agents = append(agents, toAgentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":   agents,
		"total":    result.Total,
		"page":     params.Page,
		"per_page": params.PerPage,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	s.writeAgentList(w, r, func(ctx context.Context, limit int) ([]*store.Agent, error) {
		return s.store.LatestAgents(ctx, limit)
	})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	s.writeAgentList(w, r, func(ctx context.Context, limit int) ([]*store.Agent, error) {
		return s.store.TrendingAgents(ctx, time.Now().Add(-7*24*time.Hour), limit)
	})
}

func (s *Server) writeAgentList(w http.ResponseWriter, r *http.Request, fetch func(context.Context, int) ([]*store.Agent, error)) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	list, err := fetch(r.Context(), limit)
	if err != nil {
		s.logger.Error("agent list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "listing agents failed")
		return
	}
	agents := make([]agentResponse, 0, len(list))
	for _, a := range list {
		agents = append(agents, toAgentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	agent, err := s.store.GetAgent(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "agent not found")
			return
		}
		s.logger.Error("agent lookup failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "agent lookup failed")
		return
	}

	resp := agentDetailResponse{agentResponse: toAgentResponse(agent), Readme: agent.Readme}
	if agent.Readme != "" {
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(agent.Readme), &buf); err != nil {
			s.logger.Warn("readme rendering failed", "name", name, "error", err)
		} else {
			resp.ReadmeHTML = buf.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	version := r.PathValue("version")

	v, err := s.store.GetVersion(r.Context(), name, version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "agent version not found")
			return
		}
		s.logger.Error("version lookup failed", "name", name, "version", version, "error", err)
		writeError(w, http.StatusInternalServerError, "database_error", "version lookup failed")
		return
	}

	// The response is served regardless of whether the recording succeeds.
	userAgent := r.Header.Get("User-Agent")
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.RecordDownload(ctx, name, v.Version, userAgent); err != nil {
			s.logger.Warn("failed to record download", "name", name, "error", err)
		}
		metrics.RecordDownload()
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"name":         name,
		"version":      v.Version,
		"download_url": "/packages/" + v.FilePath,
		"checksum":     v.Checksum,
		"size_bytes":   v.SizeBytes,
		"file_name":    v.FileName,
	})
}
