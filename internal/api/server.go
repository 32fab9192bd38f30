// Package api exposes the optional read-only HTTP monitoring surface:
// health, Prometheus metrics, task and workspace inspection, and a live
// event stream. All mutations go through the MCP tool surface; nothing
// served here writes.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/logging"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/metrics"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/service"
)

// Server serves the monitoring API over HTTP.
type Server struct {
	router chi.Router
	mgr    *service.Manager
	bus    *events.Bus
	log    *logging.Logger
}

// NewServer creates the monitoring server and mounts its routes.
func NewServer(cfg config.ServerConfig, mgr *service.Manager, bus *events.Bus, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	s := &Server{
		mgr: mgr,
		bus: bus,
		log: log.WithComponent("api"),
	}
	s.router = s.setupRouter(cfg.AllowedOrigins)
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(origins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// REST endpoints run under a request timeout; the event stream
		// stays open until the client disconnects.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.Get("/{taskID}", s.handleGetTask)
				r.Get("/{taskID}/logs", s.handleGetTaskLogs)
			})

			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/", s.handleListWorkspaces)
				r.Get("/{workspaceID}", s.handleGetWorkspace)
			})
		})

		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting monitoring server", "addr", addr)
	return srv.ListenAndServe()
}
