// Package server exposes the sanitizer over HTTP: clients load a playlist URL
// per session and play the returned URI, which this server also serves.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luxysiv/player/logging"
	"github.com/luxysiv/player/metrics"
	"github.com/luxysiv/player/stream/common"
	"github.com/luxysiv/player/stream/hls"
	"github.com/luxysiv/player/stream/publish"
	"github.com/luxysiv/player/telemetry"
)

// DefaultSession is used when a load request names no session
const DefaultSession = "default"

// ErrorHook receives pipeline failures that are not the client's fault
type ErrorHook func(err error, tags map[string]string)

// Config holds HTTP server configuration
type Config struct {
	Addr            string        `json:"addr"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	// MaxSessions caps live sessions; creating one beyond it releases the
	// least recently used. Zero means no cap.
	MaxSessions     int           `json:"max_sessions"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxSessions:     256,
	}
}

type sessionEntry struct {
	sanitizer *hls.Sanitizer
	lastUsed  uint64
}

// Server holds one Sanitizer per session key. All sessions publish to the
// same MemoryPublisher, which also serves the published playlists.
type Server struct {
	config    *Config
	hlsConfig *hls.Config
	fetcher   common.PlaylistFetcher
	publisher *publish.MemoryPublisher
	logger    logging.Logger
	onError   ErrorHook

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	clock    uint64

	router chi.Router
}

// New creates a server. fetcher may be nil to fetch over HTTP with hlsConfig.
func New(config *Config, hlsConfig *hls.Config, fetcher common.PlaylistFetcher, publisher *publish.MemoryPublisher) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if hlsConfig == nil {
		hlsConfig = hls.DefaultConfig()
	}
	if fetcher == nil {
		fetcher = hls.NewFetcherWithConfig(hlsConfig)
	}
	if publisher == nil {
		publisher = publish.NewMemoryPublisher()
	}

	s := &Server{
		config:    config,
		hlsConfig: hlsConfig,
		fetcher:   fetcher,
		publisher: publisher,
		logger:    logging.GetGlobalLogger(),
		sessions:  make(map[string]*sessionEntry),
	}
	s.router = s.routes()
	return s
}

// SetLogger sets a custom logger
func (s *Server) SetLogger(logger logging.Logger) {
	s.logger = logger
}

// OnError registers a hook for server-side pipeline failures
func (s *Server) OnError(hook ErrorHook) {
	s.onError = hook
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(telemetry.PanicRecoveryMiddleware("hls-sanitizer"))
	r.Use(func(next http.Handler) http.Handler {
		return metrics.Middleware(routePattern, next)
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		r.Get("/v1/load", s.handleLoad)
		r.Post("/v1/load", s.handleLoad)
		r.Delete("/v1/sessions/{session}", s.handleRelease)
	})

	r.Get("/playlists/{id}.m3u8", s.publisher.ServeHTTP)
	r.Head("/playlists/{id}.m3u8", s.publisher.ServeHTTP)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and releases every session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Fields{"addr": s.config.Addr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	err := httpSrv.Shutdown(shutdownCtx)
	s.ReleaseAll(shutdownCtx)
	return err
}

// Session returns the sanitizer for key, creating it on first use. Creating
// a session beyond Config.MaxSessions releases the least recently used one.
func (s *Server) Session(key string) *hls.Sanitizer {
	s.mu.Lock()
	s.clock++
	if sess, ok := s.sessions[key]; ok {
		sess.lastUsed = s.clock
		s.mu.Unlock()
		return sess.sanitizer
	}

	var evictedKey string
	var evicted *hls.Sanitizer
	if s.config.MaxSessions > 0 && len(s.sessions) >= s.config.MaxSessions {
		evictedKey, evicted = s.evictOldestLocked()
	}

	sanitizer := hls.NewSanitizerWithConfig(s.hlsConfig, s.fetcher, s.publisher)
	sanitizer.SetLogger(s.logger.WithFields(logging.Fields{"session": key}))
	s.sessions[key] = &sessionEntry{sanitizer: sanitizer, lastUsed: s.clock}
	s.mu.Unlock()

	if evicted != nil {
		s.logger.Info("Evicting idle session", logging.Fields{"session": evictedKey})
		if err := evicted.Release(context.Background()); err != nil {
			s.logger.Warn("Failed to release evicted session", logging.Fields{
				"session": evictedKey,
				"error":   err.Error(),
			})
		}
	}
	return sanitizer
}

func (s *Server) evictOldestLocked() (string, *hls.Sanitizer) {
	var oldestKey string
	var oldest *sessionEntry
	for key, sess := range s.sessions {
		if oldest == nil || sess.lastUsed < oldest.lastUsed {
			oldestKey, oldest = key, sess
		}
	}
	if oldest == nil {
		return "", nil
	}
	delete(s.sessions, oldestKey)
	return oldestKey, oldest.sanitizer
}

// Release drops the session and revokes its resource. It reports whether
// the session existed.
func (s *Server) Release(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, sess.sanitizer.Release(ctx)
}

// ReleaseAll releases every session
func (s *Server) ReleaseAll(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for key, sess := range sessions {
		if err := sess.sanitizer.Release(ctx); err != nil {
			s.logger.Warn("Failed to release session", logging.Fields{
				"session": key,
				"error":   err.Error(),
			})
		}
	}
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type loadResponse struct {
	ID          string `json:"id,omitempty"`
	URI         string `json:"uri"`
	Type        string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
	SourceURL   string `json:"source_url"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	rawURL := r.FormValue("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, errorResponse{
			Code:    common.ErrCodeInvalidFormat,
			Message: "url parameter is required",
		})
		return
	}

	session := r.FormValue("session")
	if session == "" {
		session = DefaultSession
	}

	resource, err := s.Session(session).Load(r.Context(), rawURL)
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError && s.onError != nil {
			s.onError(err, map[string]string{
				"session":   session,
				"url":       rawURL,
				"operation": "load",
			})
		}
		writeError(w, status, errorBody(err, rawURL))
		return
	}

	writeJSON(w, http.StatusOK, loadResponse{
		ID:          resource.ID,
		URI:         resource.URI,
		Type:        string(resource.Type),
		ContentType: resource.ContentType,
		SourceURL:   resource.SourceURL,
	})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")

	found, err := s.Release(r.Context(), session)
	if !found {
		writeError(w, http.StatusNotFound, errorResponse{
			Code:    "NOT_FOUND",
			Message: "unknown session",
		})
		return
	}
	if err != nil && !errors.Is(err, publish.ErrResourceNotFound) {
		writeError(w, http.StatusInternalServerError, errorBody(err, ""))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  s.sessionCount(),
		"resources": s.publisher.Len(),
	})
}

// StatusFor maps a pipeline error to an HTTP status
func StatusFor(err error) int {
	var fetchErr *hls.FetchError
	var streamErr *common.StreamError
	switch {
	case errors.Is(err, hls.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, hls.ErrRecursionLimitExceeded):
		return http.StatusLoopDetected
	case errors.As(err, &fetchErr), errors.Is(err, hls.ErrNoVariant):
		return http.StatusBadGateway
	case errors.As(err, &streamErr) &&
		(streamErr.Code == common.ErrCodeInvalidFormat || streamErr.Code == common.ErrCodeUnsupported):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorBody(err error, rawURL string) errorResponse {
	body := errorResponse{Code: "INTERNAL", Message: err.Error(), URL: rawURL}

	var streamErr *common.StreamError
	if errors.As(err, &streamErr) {
		body.Code = streamErr.Code
		if streamErr.URL != "" {
			body.URL = streamErr.URL
		}
	}
	return body
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body errorResponse) {
	writeJSON(w, status, body)
}
