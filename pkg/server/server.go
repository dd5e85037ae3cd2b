// Package server exposes tracked videos, analytics and alerts over a JSON
// HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elonfeng/vidpulse/internal/config"
	"github.com/elonfeng/vidpulse/internal/ingest"
	"github.com/elonfeng/vidpulse/internal/metrics"
	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

// Ingester is the write side of the API.
type Ingester interface {
	Run(ctx context.Context, at time.Time) (*ingest.RunSummary, error)
	Track(ctx context.Context, input string) (*ingest.TrackResult, error)
	TrackMany(ctx context.Context, inputs []string) ([]ingest.TrackResult, []error)
	Untrack(ctx context.Context, input string) error
}

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Port     int
	Gatherer prometheus.Gatherer
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server provides the HTTP API.
type Server struct {
	store    store.Store
	ingester Ingester
	gatherer prometheus.Gatherer
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
	port     int
}

// New creates a new HTTP server.
func New(st store.Store, ing Ingester, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		store:    st,
		ingester: ing,
		gatherer: opts.Gatherer,
		loc:      opts.Location,
		log:      opts.Logger,
		now:      opts.Now,
		port:     opts.Port,
	}
}

// Handler returns the router with every route and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler(s.gatherer))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/overview", s.handleOverview)

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", s.handleListVideos)
			r.Post("/", s.handleTrack)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetVideo)
				r.Delete("/", s.handleUntrack)
				r.Get("/stats", s.handleStats)
				r.Get("/analysis", s.handleAnalysis)
				r.Get("/suggestions", s.handleSuggestions)
				r.Get("/comments", s.handleComments)
				r.Get("/comments/insights", s.handleCommentInsights)
			})
		})

		r.Get("/alerts", s.handleAlerts)
		r.Post("/alerts/{id}/read", s.handleReadAlert)
		r.Get("/tags", s.handleTags)
		r.Get("/runs", s.handleRuns)
		r.Post("/ingest", s.handleIngest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	return r
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("vidpulse server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

// requestLogger logs one line per request, at warn for 4xx and error for
// 5xx responses.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				level := slog.LevelInfo
				switch {
				case status >= 500:
					level = slog.LevelError
				case status >= 400:
					level = slog.LevelWarn
				}
				log.Log(r.Context(), level, "http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", float64(time.Since(start).Microseconds())/1000,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrInvalidVideoID), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, youtube.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, config.ErrMissingAPIKey), errors.Is(err, youtube.ErrMissingAPIKey):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
