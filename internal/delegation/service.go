// ABOUTME: Delegation routing: snapshot subordinates, ask for judgment, fall back deterministically.
// ABOUTME: Always terminates with a sent decision; judgment failure is never surfaced as an error.

package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/store"
)

// ErrNotBoss indicates the acting agent is not boss-class.
var ErrNotBoss = errors.New("agent is not a boss")

// ErrNoSubordinates indicates the boss has nobody to delegate to.
var ErrNoSubordinates = errors.New("boss has no subordinates")

// fallbackReasoning is the fixed reasoning string attached to every
// deterministic fallback selection.
const fallbackReasoning = "fallback selection: judgment call unavailable"

// SubordinateContext is the ephemeral snapshot handed to the judgment
// call. Built fresh for every delegation; never cached.
type SubordinateContext struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Class          string `json:"class"`
	Status         string `json:"status"`
	CurrentTask    string `json:"currentTask,omitempty"`
	LastTask       string `json:"lastTask,omitempty"`
	RecentWork     string `json:"recentWork,omitempty"`
	ContextPercent int    `json:"contextPercent"`
}

// Notifier receives decision lifecycle events for observer broadcast.
type Notifier interface {
	DelegationDecision(d *store.DelegationDecision)
}

// Service routes a boss's command to the best available subordinate.
type Service struct {
	roster  *agent.Roster
	judge   JudgmentCaller
	history store.Store
	notify  Notifier
	timeout time.Duration
	logger  *slog.Logger

	mu         sync.RWMutex
	recentWork map[string]string // agent id -> last final output summary
}

// NewService creates a delegation service. notify may be nil.
func NewService(roster *agent.Roster, judge JudgmentCaller, history store.Store, notify Notifier, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		roster:     roster,
		judge:      judge,
		history:    history,
		notify:     notify,
		timeout:    timeout,
		logger:     logger.With("component", "delegation"),
		recentWork: make(map[string]string),
	}
}

// RecordWork stores a recent-work summary for an agent, included in future
// subordinate snapshots.
func (s *Service) RecordWork(agentID, summary string) {
	const maxSummary = 200
	if len(summary) > maxSummary {
		summary = summary[:maxSummary]
	}
	s.mu.Lock()
	s.recentWork[agentID] = summary
	s.mu.Unlock()
}

// Delegate routes userCommand to one of the boss's subordinates and
// records the decision. The only errors are preconditions (not a boss, no
// subordinates); once past those, delegation always produces a sent
// decision, falling back deterministically when the judgment call fails in
// any way.
func (s *Service) Delegate(ctx context.Context, bossID, userCommand string) (*store.DelegationDecision, error) {
	boss, ok := s.roster.Get(bossID)
	if !ok {
		return nil, agent.ErrAgentNotFound
	}
	if !boss.IsBoss() {
		return nil, ErrNotBoss
	}

	subs, err := s.snapshotSubordinates(bossID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNoSubordinates
	}

	decision := &store.DelegationDecision{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		BossID:      bossID,
		UserCommand: userCommand,
		Status:      store.DecisionPending,
	}
	// Observers see the pending decision before the judgment call starts.
	s.record(ctx, decision)

	outcome := s.askJudgment(ctx, subs, userCommand)
	if outcome.Parsed != nil {
		ans := outcome.Parsed
		selected := findSub(subs, ans.SelectedAgent)
		decision.SelectedAgentID = selected.ID
		decision.SelectedAgentName = selected.Name
		decision.Reasoning = ans.Reasoning
		decision.AlternativeAgents = ans.Alternatives
		decision.Confidence = store.Confidence(ans.Confidence)
	} else {
		s.logger.Warn("judgment failed, using fallback",
			"boss_id", bossID, "reason", outcome.Malformed)
		selected := fallbackPick(subs)
		decision.SelectedAgentID = selected.ID
		decision.SelectedAgentName = selected.Name
		decision.Reasoning = fallbackReasoning
		decision.Confidence = store.ConfidenceLow
	}

	decision.Status = store.DecisionSent
	s.record(ctx, decision)

	s.logger.Info("delegation decided",
		"boss_id", bossID,
		"selected", decision.SelectedAgentID,
		"confidence", decision.Confidence,
	)
	return decision, nil
}

// History returns a boss's decision log, newest first.
func (s *Service) History(ctx context.Context, bossID string, limit int) ([]*store.DelegationDecision, error) {
	return s.history.ListDelegationDecisions(ctx, bossID, limit)
}

// snapshotSubordinates builds fresh SubordinateContexts for every current
// subordinate of the boss.
func (s *Service) snapshotSubordinates(bossID string) ([]SubordinateContext, error) {
	agents, err := s.roster.Subordinates(bossID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]SubordinateContext, 0, len(agents))
	for _, a := range agents {
		pct := 0
		if a.ContextLimit > 0 {
			pct = a.ContextUsed * 100 / a.ContextLimit
		}
		subs = append(subs, SubordinateContext{
			ID:             a.ID,
			Name:           a.Name,
			Class:          string(a.Class),
			Status:         string(a.Status),
			CurrentTask:    a.CurrentTask,
			LastTask:       a.LastAssignedTask,
			RecentWork:     s.recentWork[a.ID],
			ContextPercent: pct,
		})
	}
	return subs, nil
}

// askJudgment invokes the external call under a hard timeout and parses
// its answer. Every failure mode lands in the Malformed arm.
func (s *Service) askJudgment(ctx context.Context, subs []SubordinateContext, userCommand string) ParseOutcome {
	if s.judge == nil {
		return ParseOutcome{Malformed: "no judgment caller configured"}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.judge.Judge(callCtx, buildPrompt(subs, userCommand))
	if err != nil {
		return ParseOutcome{Malformed: err.Error()}
	}
	return parseJudgment(raw, subs)
}

// buildPrompt renders the subordinate snapshots and the user command into
// the judgment request, demanding a structurally constrained JSON answer.
func buildPrompt(subs []SubordinateContext, userCommand string) string {
	var b strings.Builder
	b.WriteString("You route tasks to AI coding agents. Pick the best agent for the command.\n\n")
	b.WriteString("<agents>\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "- id=%s name=%s class=%s status=%s context_used=%d%%\n",
			sub.ID, sub.Name, sub.Class, sub.Status, sub.ContextPercent)
		if sub.CurrentTask != "" {
			fmt.Fprintf(&b, "  current task: %s\n", sub.CurrentTask)
		}
		if sub.LastTask != "" {
			fmt.Fprintf(&b, "  last task: %s\n", sub.LastTask)
		}
		if sub.RecentWork != "" {
			fmt.Fprintf(&b, "  recent work: %s\n", sub.RecentWork)
		}
	}
	b.WriteString("</agents>\n\n")
	fmt.Fprintf(&b, "<command>%s</command>\n\n", userCommand)
	b.WriteString(`Respond with only a JSON object: {"selectedAgent": "<id>", ` +
		`"reasoning": "<why>", "alternatives": ["<id>", ...], ` +
		`"confidence": "high"|"medium"|"low"}`)
	return b.String()
}

// fallbackPick is the deterministic rule: first idle subordinate, else the
// first in assignment order.
func fallbackPick(subs []SubordinateContext) SubordinateContext {
	for _, sub := range subs {
		if sub.Status == string(agent.StatusIdle) {
			return sub
		}
	}
	return subs[0]
}

// findSub returns the subordinate with the given id. The parser guarantees
// the id resolves.
func findSub(subs []SubordinateContext, id string) SubordinateContext {
	for _, sub := range subs {
		if sub.ID == id {
			return sub
		}
	}
	return subs[0]
}

// record persists the decision write-through and notifies observers.
// Persistence failure is logged, not surfaced: a routing decision must not
// fail because the history write did.
func (s *Service) record(ctx context.Context, d *store.DelegationDecision) {
	if err := s.history.SaveDelegationDecision(ctx, d); err != nil {
		s.logger.Warn("decision save failed", "decision_id", d.ID, "error", err)
	}
	if s.notify != nil {
		s.notify.DelegationDecision(d)
	}
}
