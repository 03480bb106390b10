package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IngestStatus is what the server needs from the ingest pipeline.
type IngestStatus interface {
	sharedobs.ReadinessChecker
	LastRun() (domain.RunReport, bool)
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	Ready          bool              `json:"ready"`
	LastRun        *domain.RunReport `json:"last_run"`
	RecordsWritten int               `json:"records_written"`
	FailedFiles    int               `json:"failed_files"`
	Error          string            `json:"error,omitempty"`
}

// Server exposes health, readiness, ingest status and metrics over HTTP.
type Server struct {
	httpServer *http.Server
	status     IngestStatus
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /status and /metrics routes.
func NewServer(addr string, status IngestStatus, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		status: status,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(status))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleStatus reports the last completed ingest run with per-file outcomes.
// It answers 200 even before the first run; readiness lives on /readyz.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var resp statusResponse
	if err := s.status.CheckReadiness(ctx); err != nil {
		resp.Error = err.Error()
	} else {
		resp.Ready = true
	}
	if report, ok := s.status.LastRun(); ok {
		resp.LastRun = &report
		resp.RecordsWritten = report.Written()
		resp.FailedFiles = report.Failures()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort status response
}
