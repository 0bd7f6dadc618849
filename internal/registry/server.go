// ABOUTME: HTTP server and routing for the carp-registry API
// ABOUTME: Wires metrics, rate limiting, body limits and per-route auth

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/carpdev/carp-registry/internal/auth"
	"github.com/carpdev/carp-registry/internal/config"
	"github.com/carpdev/carp-registry/internal/metrics"
	"github.com/carpdev/carp-registry/internal/store"
)

// Server is the carp-registry HTTP API server.
type Server struct {
	cfg    *config.Config
	store  store.Store
	auth   *auth.Authenticator
	files  *FileStore
	logger *slog.Logger
	md     goldmark.Markdown

	httpServer *http.Server
	limiter    *rateLimiter

	// spawn runs detached work (download recording); replaceable in tests.
	spawn func(func())
}

// NewServer wires up a registry server from its dependencies.
func NewServer(cfg *config.Config, st store.Store, authn *auth.Authenticator, files *FileStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		store:  st,
		auth:   authn,
		files:  files,
		logger: logger.With("component", "registry"),
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		spawn:  func(fn func()) { go fn() },
	}
	s.limiter = newRateLimiter(cfg.Limits.RequestsPerSec, cfg.Limits.Burst)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// routes builds the full router with per-route middleware chains.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}
	protected := func(pattern string, strategy auth.Strategy, scope string, h http.HandlerFunc) {
		var handler http.Handler = h
		handler = auth.RequireScope(scope)(handler)
		handler = auth.Middleware(s.auth, strategy)(handler)
		mux.Handle(pattern, s.instrument(pattern, handler))
	}

	public("GET /health", s.handleHealth)
	public("GET /api/v1/agents/search", s.handleSearch)
	public("GET /api/v1/agents/latest", s.handleLatest)
	public("GET /api/v1/agents/trending", s.handleTrending)
	public("GET /api/v1/agents/{name}", s.handleAgentDetail)
	public("GET /api/v1/agents/{name}/{version}/download", s.handleDownload)

	// Package files are served straight from the storage directory.
	mux.Handle("GET /packages/",
		s.instrument("GET /packages/",
			http.StripPrefix("/packages/", http.FileServer(http.Dir(s.files.Root())))))

	protected("POST /api/v1/agents/upload", auth.StrategyAPIKey, auth.ScopeUpload, s.handleUpload)
	protected("POST /api/v1/agents/publish", auth.StrategyAPIKey, auth.ScopePublish, s.handlePublish)

	protected("POST /api/v1/auth/keys", auth.StrategySignedToken, auth.ScopeKeyCreate, s.handleCreateKey)
	protected("GET /api/v1/auth/keys", auth.StrategySignedToken, auth.ScopeKeyManage, s.handleListKeys)
	protected("DELETE /api/v1/auth/keys/{id}", auth.StrategySignedToken, auth.ScopeKeyManage, s.handleDeleteKey)

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, metrics.Handler())
	}

	return mux
}

// instrument applies the shared middleware: metrics then rate limiting then a
// request body cap.
func (s *Server) instrument(pattern string, h http.Handler) http.Handler {
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Limits.MaxUploadBytes)
		h.ServeHTTP(w, r)
	})
	return metrics.Instrument(pattern, s.limiter.middleware(limited))
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("registry listening", "addr", s.cfg.Server.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.close()
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"offline": s.cfg.Auth.OfflineMode,
	})
}
