// Package api exposes the monitoring surface over HTTP: snapshot and
// progress reads plus run control commands, one monitor per resource.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/app/monitor"
	"github.com/opensoc/runwatch/pkg/common/logger"
	"github.com/opensoc/runwatch/pkg/common/otel"
)

type Server struct {
	addr     string
	logger   *logger.Logger
	router   *chi.Mux
	registry *monitor.Registry
	tracer   trace.Tracer
}

func NewServer(addr string, log *logger.Logger, tracer trace.Tracer, registry *monitor.Registry) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		logger:   log,
		router:   r,
		registry: registry,
		tracer:   tracer,
	}

	s.routes()
	return s
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.TraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Route("/monitors/{resourceID}", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/progress", s.handleProgress)
			r.Get("/batches", s.handleRecentBatches)

			r.Post("/pause", s.handleCommand((*monitor.RunMonitor).Pause))
			r.Post("/resume", s.handleCommand((*monitor.RunMonitor).Resume))
			r.Post("/cancel", s.handleCommand((*monitor.RunMonitor).Cancel))
			r.Post("/refresh", s.handleRefresh)
			r.Post("/new-analysis", s.handleNewAnalysis)
			r.Put("/batch-size", s.handleBatchSize)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// resourceMonitor resolves the monitor for the request's resource id,
// creating and starting one on first access.
func (s *Server) resourceMonitor(w http.ResponseWriter, r *http.Request) (*monitor.RunMonitor, bool) {
	resourceID, err := uuid.Parse(chi.URLParam(r, "resourceID"))
	if err != nil {
		http.Error(w, "invalid resource id", http.StatusBadRequest)
		return nil, false
	}

	m, err := s.registry.GetOrCreate(r.Context(), resourceID)
	if err != nil {
		s.logger.Error(r.Context(), "failed to start monitor", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return m, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	m, ok := s.resourceMonitor(w, r)
	if !ok {
		return
	}

	snap := m.Snapshot()
	if snap == nil {
		http.Error(w, "no run being monitored", http.StatusNotFound)
		return
	}
	s.respondJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	m, ok := s.resourceMonitor(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, r, http.StatusOK, m.Progress())
}

func (s *Server) handleRecentBatches(w http.ResponseWriter, r *http.Request) {
	m, ok := s.resourceMonitor(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, r, http.StatusOK, m.RecentBatches())
}

// handleCommand adapts one monitor command method into an HTTP handler.
func (s *Server) handleCommand(cmd func(*monitor.RunMonitor, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := s.resourceMonitor(w, r)
		if !ok {
			return
		}

		if err := cmd(m, r.Context()); err != nil {
			s.respondCommandError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	m, ok := s.resourceMonitor(w, r)
	if !ok {
		return
	}
	m.Refresh(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleNewAnalysis(w http.ResponseWriter, r *http.Request) {
	m, ok := s.resourceMonitor(w, r)
	if !ok {
		return
	}

	if err := m.StartNewAnalysis(r.Context()); err != nil {
		s.logger.Error(r.Context(), "failed to reset monitor", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleBatchSize(w http.ResponseWriter, r *http.Request) {
	m, ok := s.resourceMonitor(w, r)
	if !ok {
		return
	}

	var req struct {
		BatchSize int `json:"batch_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := m.UpdateBatchSize(r.Context(), req.BatchSize); err != nil {
		s.respondCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) respondCommandError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, monitor.ErrNoRunToControl) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Error(r.Context(), "command failed", "error", err)
	http.Error(w, err.Error(), http.StatusConflict)
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), "failed to encode response", "error", err)
	}
}

// Handler exposes the configured router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info(ctx, "API server listening", "addr", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
