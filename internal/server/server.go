// ABOUTME: HTTP server exposing the synchronous orchestration API and the observer WebSocket.
// ABOUTME: Thin JSON layer; all semantics live in the orchestrator.

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/roost/internal/broadcast"
	"github.com/2389/roost/internal/orchestrator"
	"github.com/2389/roost/internal/store"
)

// Server serves the JSON API and the observer WebSocket.
type Server struct {
	orch   *orchestrator.Orchestrator
	hub    *broadcast.Hub
	ledger store.Store
	logger *slog.Logger
	http   *http.Server
}

// New builds a server listening on addr.
func New(addr string, orch *orchestrator.Orchestrator, hub *broadcast.Hub, ledger store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:   orch,
		hub:    hub,
		ledger: ledger,
		logger: logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleSpawn)
	mux.HandleFunc("POST /api/agents/{id}/command", s.handleCommand)
	mux.HandleFunc("POST /api/agents/{id}/stop", s.handleStop)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleRemove)
	mux.HandleFunc("POST /api/agents/{id}/subordinates", s.handleAssignSubordinates)
	mux.HandleFunc("DELETE /api/agents/{id}/subordinates/{subId}", s.handleRemoveSubordinate)
	mux.HandleFunc("POST /api/agents/{id}/delegate", s.handleDelegate)
	mux.HandleFunc("POST /api/permissions/respond", s.handlePermissionRespond)
	mux.HandleFunc("GET /api/delegations", s.handleDelegationHistory)
	mux.HandleFunc("GET /api/patterns", s.handleListPatterns)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("json response encode failed", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
