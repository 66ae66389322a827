// ABOUTME: Request/response state machine for out-of-band approval of risky tools.
// ABOUTME: Each pending request resolves exactly once: response, timeout, or cancel.

package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/store"
)

// ErrDuplicateRequest indicates a request id is already pending.
var ErrDuplicateRequest = errors.New("permission request id already pending")

// Request is one pending approval, as surfaced by a worker mid-task.
type Request struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	Tool      string          `json:"tool"`
	ToolInput json.RawMessage `json:"toolInput"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Decision is the outcome of a request.
type Decision struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
	// TimedOut marks a deny produced by the timeout path.
	TimedOut bool `json:"timedOut,omitempty"`
}

// Response is a caller's answer to a pending request.
type Response struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
	// Remember derives and persists an auto-approval pattern on approve.
	Remember bool `json:"remember,omitempty"`
}

// pending is the service-internal state for one open request.
type pending struct {
	req        Request
	priorState agent.Status
	timer      *time.Timer
	decision   chan Decision
	resolved   bool
}

// Notifier receives request lifecycle events for observer broadcast.
type Notifier interface {
	PermissionRequested(req Request)
	PermissionResolved(req Request, d Decision)
}

// Service owns every pending permission request. The owning agent's status
// is snapshotted at request time, forced to waiting_permission, and
// restored exactly once at resolution, whichever path resolves first.
type Service struct {
	roster   *agent.Roster
	patterns store.Store
	notify   Notifier
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending
}

// NewService creates a permission service. notify may be nil.
func NewService(roster *agent.Roster, patterns store.Store, notify Notifier, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		roster:   roster,
		patterns: patterns,
		notify:   notify,
		timeout:  timeout,
		logger:   logger.With("component", "permission"),
		pending:  make(map[string]*pending),
	}
}

// Create registers a pending request and returns a channel that yields the
// decision exactly once. The request id is caller-supplied and must be
// unique among concurrently pending requests.
//
// Auto-approval: when a remembered pattern matches the tool and input, the
// request resolves approved immediately without entering the pending set.
func (s *Service) Create(ctx context.Context, req Request) (<-chan Decision, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}
	if req.ID == "" {
		return nil, fmt.Errorf("request id is required")
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	if s.autoApproved(ctx, req) {
		ch := make(chan Decision, 1)
		ch <- Decision{RequestID: req.ID, Approved: true, Reason: "matched remembered pattern"}
		close(ch)
		s.logger.Info("permission auto-approved",
			"request_id", req.ID, "agent_id", req.AgentID, "tool", req.Tool)
		return ch, nil
	}

	a, ok := s.roster.Get(req.AgentID)
	if !ok {
		return nil, agent.ErrAgentNotFound
	}

	s.mu.Lock()
	if _, exists := s.pending[req.ID]; exists {
		s.mu.Unlock()
		return nil, ErrDuplicateRequest
	}

	p := &pending{
		req:        req,
		priorState: a.Status,
		decision:   make(chan Decision, 1),
	}
	p.timer = time.AfterFunc(s.timeout, func() { s.expire(req.ID) })
	s.pending[req.ID] = p
	s.mu.Unlock()

	if _, err := s.roster.Update(req.AgentID, func(a *agent.Agent) {
		a.Status = agent.StatusWaitingPermission
		a.CurrentTool = req.Tool
	}); err != nil {
		s.logger.Warn("status update failed", "agent_id", req.AgentID, "error", err)
	}

	if s.notify != nil {
		s.notify.PermissionRequested(req)
	}
	s.logger.Info("permission requested",
		"request_id", req.ID, "agent_id", req.AgentID, "tool", req.Tool)

	return p.decision, nil
}

// Respond resolves a pending request. Returns false ("not handled") when no
// matching pending request exists, making duplicate and late responses
// idempotent no-ops.
func (s *Service) Respond(ctx context.Context, resp Response) bool {
	d := Decision{RequestID: resp.RequestID, Approved: resp.Approved, Reason: resp.Reason}
	p := s.take(resp.RequestID)
	if p == nil {
		s.logger.Debug("response for unknown request", "request_id", resp.RequestID)
		return false
	}

	if resp.Approved && resp.Remember {
		s.remember(ctx, p.req)
	}
	s.finish(p, d)
	return true
}

// CancelForAgent force-resolves every pending request owned by the agent as
// denied. Used when an agent is stopped or removed.
func (s *Service) CancelForAgent(agentID string) int {
	s.mu.Lock()
	var owned []*pending
	for id, p := range s.pending {
		if p.req.AgentID == agentID {
			p.timer.Stop()
			p.resolved = true
			delete(s.pending, id)
			owned = append(owned, p)
		}
	}
	s.mu.Unlock()

	for _, p := range owned {
		s.finish(p, Decision{
			RequestID: p.req.ID,
			Approved:  false,
			Reason:    "agent was stopped",
		})
	}
	return len(owned)
}

// PendingForAgent returns copies of the agent's pending requests.
func (s *Service) PendingForAgent(agentID string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, p := range s.pending {
		if p.req.AgentID == agentID {
			out = append(out, p.req)
		}
	}
	return out
}

// expire is the timeout path: deny with a timeout reason.
func (s *Service) expire(requestID string) {
	p := s.take(requestID)
	if p == nil {
		return
	}
	s.logger.Info("permission request timed out",
		"request_id", requestID, "agent_id", p.req.AgentID)
	s.finish(p, Decision{
		RequestID: requestID,
		Approved:  false,
		Reason:    "permission request timed out",
		TimedOut:  true,
	})
}

// take atomically removes a request from the pending set, stopping its
// timer. Returns nil if it was already resolved.
func (s *Service) take(requestID string) *pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[requestID]
	if !ok || p.resolved {
		return nil
	}
	p.timer.Stop()
	p.resolved = true
	delete(s.pending, requestID)
	return p
}

// finish restores the snapshotted status and delivers the decision.
func (s *Service) finish(p *pending, d Decision) {
	if _, err := s.roster.Update(p.req.AgentID, func(a *agent.Agent) {
		// Restore only if gating still owns the status; a stop may have
		// reset the agent underneath us.
		if a.Status == agent.StatusWaitingPermission {
			a.Status = p.priorState
		}
		a.CurrentTool = ""
	}); err != nil && !errors.Is(err, agent.ErrAgentNotFound) {
		s.logger.Warn("status restore failed", "agent_id", p.req.AgentID, "error", err)
	}

	p.decision <- d
	close(p.decision)

	if s.notify != nil {
		s.notify.PermissionResolved(p.req, d)
	}
	s.logger.Info("permission resolved",
		"request_id", p.req.ID,
		"agent_id", p.req.AgentID,
		"approved", d.Approved,
		"timed_out", d.TimedOut,
	)
}

// autoApproved reports whether a remembered pattern covers the request.
func (s *Service) autoApproved(ctx context.Context, req Request) bool {
	if s.patterns == nil {
		return false
	}
	patterns, err := s.patterns.ListRememberedPatterns(ctx)
	if err != nil {
		s.logger.Warn("pattern lookup failed", "error", err)
		return false
	}
	for _, p := range patterns {
		if Matches(p, req.Tool, req.ToolInput) {
			return true
		}
	}
	return false
}

// remember derives a pattern from an approved request and persists it.
// Re-adding an existing (tool, pattern) pair is a no-op in the store.
func (s *Service) remember(ctx context.Context, req Request) {
	p := DerivePattern(req.Tool, req.ToolInput)
	if p == nil {
		return
	}
	if err := s.patterns.SaveRememberedPattern(ctx, p); err != nil {
		s.logger.Warn("pattern save failed", "tool", p.Tool, "pattern", p.Pattern, "error", err)
		return
	}
	s.logger.Info("pattern remembered", "tool", p.Tool, "pattern", p.Pattern)
}
