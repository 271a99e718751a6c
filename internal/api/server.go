// Package api serves the admin HTTP API: health, handler listing, queue
// status and on-demand handler reloads.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/sirupsen/logrus"
)

// Registry lists and reloads handlers; *plugin.Registry implements it
type Registry interface {
	List() []*plugin.Handler
	Load(ctx context.Context) (int, error)
}

// QueueReporter lists live sender lanes; *dispatch.Engine implements it
type QueueReporter interface {
	QueueStatus() []dispatch.QueueStatus
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Token is an optional bearer token; empty leaves the API unauthenticated
	Token string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	registry  Registry
	queues    QueueReporter
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, registry Registry, queues QueueReporter) *Server {
	return &Server{
		config:    config,
		registry:  registry,
		queues:    queues,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully. It blocks.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.WithField("listen", s.config.Listen).Info("api-server-starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("api-server-shutting-down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/handlers", s.handleListHandlers)
		r.Post("/handlers/reload", s.handleReload)
		r.Get("/queues", s.handleQueues)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Handlers:      len(s.registry.List()),
		ActiveQueues:  len(s.queues.QueueStatus()),
	})
}

func (s *Server) handleListHandlers(w http.ResponseWriter, _ *http.Request) {
	handlers := s.registry.List()
	out := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, HandlerInfo{
			Name:           h.Name,
			Aliases:        h.Aliases,
			Category:       h.Category,
			Description:    h.Description,
			Usage:          h.Usage,
			CooldownSecs:   int(h.Cooldown / time.Second),
			DailyLimit:     h.DailyLimit,
			Role:           string(h.Role),
			GroupOnly:      h.GroupOnly,
			PrivateOnly:    h.PrivateOnly,
			Experimental:   h.Experimental,
			BotMustBeAdmin: h.BotMustBeAdmin,
			Hidden:         h.Hidden,
			Source:         h.Source,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.registry.Load(r.Context())
	if err != nil {
		logger.WithField("error", err).Warn("api-reload-failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ReloadResponse{Loaded: n})
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	status := s.queues.QueueStatus()
	if status == nil {
		status = []dispatch.QueueStatus{}
	}
	respondJSON(w, http.StatusOK, status)
}

// authMiddleware checks the bearer token when one is configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		key, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	key := strings.TrimSpace(auth[len(prefix):])
	return key, key != ""
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http-request")
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
