// ABOUTME: JSON endpoint handlers for the synchronous orchestration surface.
// ABOUTME: Maps orchestrator errors onto HTTP status codes.

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/delegation"
	"github.com/2389/roost/internal/orchestrator"
	"github.com/2389/roost/internal/permission"
	"github.com/2389/roost/internal/runner"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Agents())
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SpawnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.orch.Spawn(req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.ExecuteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.AgentID = r.PathValue("id")
	if err := s.orch.ExecuteCommand(r.Context(), req); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Stop(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Remove(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignSubordinates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubordinateIDs []string `json:"subordinateIds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	accepted, err := s.orch.AssignSubordinates(r.PathValue("id"), req.SubordinateIDs)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": accepted})
}

func (s *Server) handleRemoveSubordinate(w http.ResponseWriter, r *http.Request) {
	err := s.orch.RemoveSubordinate(r.PathValue("id"), r.PathValue("subId"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	d, err := s.orch.Delegate(r.Context(), r.PathValue("id"), req.Command)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePermissionRespond(w http.ResponseWriter, r *http.Request) {
	var resp permission.Response
	if !decodeBody(w, r, &resp) {
		return
	}
	handled := s.orch.RespondPermission(r.Context(), resp)
	writeJSON(w, http.StatusOK, map[string]bool{"handled": handled})
}

func (s *Server) handleDelegationHistory(w http.ResponseWriter, r *http.Request) {
	bossID := r.URL.Query().Get("boss")
	if bossID == "" {
		writeError(w, http.StatusBadRequest, "boss query parameter is required")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	history, err := s.ledger.ListDelegationDecisions(r.Context(), bossID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.ledger.ListRememberedPatterns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

// statusFor maps core errors onto HTTP status codes. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, agent.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrAgentExists),
		errors.Is(err, runner.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrInvalidSpawn),
		errors.Is(err, delegation.ErrNotBoss),
		errors.Is(err, delegation.ErrNoSubordinates):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrRunnerNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
