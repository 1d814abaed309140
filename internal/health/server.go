package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/api3dao/wallet-watcher/internal/control"
	"github.com/api3dao/wallet-watcher/internal/infra/storage"
)

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	status control.StatusProvider
	repo   storage.BalanceRepository
	server *http.Server
}

// NewServer creates a new health server. repo may be nil, in which case
// /wallets is not served.
func NewServer(status control.StatusProvider, repo storage.BalanceRepository, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		status: status,
		repo:   repo,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if repo != nil {
		mux.HandleFunc("/wallets", s.handleWallets)
	}

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	run := s.status.LastRun()
	report := Report{Status: StatusOf(run), LastRun: run}

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, report)
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.repo.Latest(r.Context())
	if err != nil {
		slog.Error("Failed to load latest balances", "error", err)
		http.Error(w, "failed to load balances", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, statuses)
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
