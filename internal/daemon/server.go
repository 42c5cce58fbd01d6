package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the built site plus health and metrics endpoints.
type Server struct {
	addr    string
	siteDir string
	daemon  *Daemon
	httpSrv *http.Server
}

// NewServer creates the HTTP server. reg may be nil to disable /metrics.
func NewServer(addr, siteDir string, daemon *Daemon, reg *prometheus.Registry) *Server {
	s := &Server{addr: addr, siteDir: siteDir, daemon: daemon}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(siteDir)))
	mux.HandleFunc("/healthz", s.handleHealth)
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in the background; ListenAndServe errors other than a clean
// shutdown are logged.
func (s *Server) Start(ctx context.Context) {
	go func() {
		slog.Info("HTTP server listening", "addr", s.addr, "site", s.siteDir)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status      string    `json:"status"`
	LastBuildID string    `json:"last_build_id,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastBuildAt time.Time `json:"last_build_at,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.daemon != nil {
		if result, at := s.daemon.LastBuild(); result != nil {
			resp.LastBuildID = result.BuildID
			resp.LastOutcome = result.Outcome
			resp.LastBuildAt = at
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("Failed to encode health response", "error", err)
	}
}
