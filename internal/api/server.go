// Package api serves the host's operational HTTP surface: Prometheus
// metrics, a liveness probe and read-only access to the invocation ledger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/internal/metrics"
	"github.com/nuyoahch/agent-runtime/internal/runlog"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

const defaultListLimit = 20

// Server exposes the status endpoints. Runs may be nil, in which case the
// ledger endpoints answer 503.
type Server struct {
	addr string
	runs runlog.Store
	log  *slog.Logger
}

// NewServer builds a server listening on addr.
func NewServer(addr string, runs runlog.Store) *Server {
	return &Server{addr: addr, runs: runs, log: logger.Named("api")}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/invocations/{id}", s.handleInvocation)
	mux.HandleFunc("GET /api/v1/threads/{thread}/invocations", s.handleThreadInvocations)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("status server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInvocation(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "invocation ledger disabled")
		return
	}
	rec, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleThreadInvocations(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "invocation ledger disabled")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.runs.ListByThread(r.Context(), r.PathValue("thread"), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if records == nil {
		records = []runlog.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if xerrors.HasCode(err, xerrors.CodeNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Warn("ledger query failed", "error", err)
	writeError(w, http.StatusInternalServerError, "ledger query failed")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
