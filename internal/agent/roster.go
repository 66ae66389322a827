// ABOUTME: Roster is the single shared table of supervised agents.
// ABOUTME: All mutation goes through its accessors, which enforce hierarchy invariants.

package agent

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// ErrAgentExists indicates an agent with the same ID is already registered.
var ErrAgentExists = errors.New("agent already registered")

// Roster coordinates all supervised agents. It is the one shared mutable
// resource of the orchestrator; every component reads and writes agent
// state through it rather than through private copies.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	order  []string // registration order, drives deterministic listings
	logger *slog.Logger
}

// NewRoster creates an empty roster.
func NewRoster(logger *slog.Logger) *Roster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{
		agents: make(map[string]*Agent),
		logger: logger.With("component", "roster"),
	}
}

// Add registers a new agent. Returns ErrAgentExists when the ID is taken.
func (r *Roster) Add(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; exists {
		return ErrAgentExists
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = StatusIdle
	}
	r.agents[a.ID] = a
	r.order = append(r.order, a.ID)

	r.logger.Info("agent registered",
		"agent_id", a.ID,
		"name", a.Name,
		"class", a.Class,
		"provider", a.Provider,
		"total_agents", len(r.agents),
	)
	return nil
}

// Get returns a deep copy of the agent, or false if unknown.
func (r *Roster) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// List returns deep copies of all agents in registration order.
func (r *Roster) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, id := range r.order {
		if a, ok := r.agents[id]; ok {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Update applies fn to the named agent under the roster lock and returns a
// copy of the result. fn must not call back into the roster.
func (r *Roster) Update(id string, fn func(*Agent)) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	fn(a)
	return a.Clone(), nil
}

// Remove deletes the agent, detaches it from its boss, and clears the
// BossID back-reference on any of its own subordinates. Returns the removed
// agent so the caller can cancel permissions and drop dedup state.
func (r *Roster) Remove(id string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}

	if a.BossID != "" {
		if boss, ok := r.agents[a.BossID]; ok {
			boss.SubordinateIDs = removeID(boss.SubordinateIDs, id)
		}
	}
	for _, subID := range a.SubordinateIDs {
		if sub, ok := r.agents[subID]; ok && sub.BossID == id {
			sub.BossID = ""
		}
	}

	delete(r.agents, id)
	r.order = removeID(r.order, id)

	r.logger.Info("agent removed",
		"agent_id", id,
		"name", a.Name,
		"total_agents", len(r.agents),
	)
	return a.Clone(), nil
}

// AssignSubordinates replaces the subordinate list of a boss. The operation
// is idempotent and corrective: unknown ids and boss-class ids are silently
// dropped, and a subordinate currently owned by a different boss is
// re-parented (removed from that boss's list first). BossID back-references
// and list membership are kept mutually consistent in one critical section.
func (r *Roster) AssignSubordinates(bossID string, subordinateIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	boss, ok := r.agents[bossID]
	if !ok {
		return nil, ErrAgentNotFound
	}

	accepted := make([]string, 0, len(subordinateIDs))
	seen := make(map[string]bool, len(subordinateIDs))
	for _, subID := range subordinateIDs {
		if subID == bossID || seen[subID] {
			continue
		}
		sub, ok := r.agents[subID]
		if !ok {
			r.logger.Warn("dropping unknown subordinate", "boss_id", bossID, "subordinate_id", subID)
			continue
		}
		if sub.Class == ClassBoss {
			r.logger.Warn("dropping boss-class subordinate", "boss_id", bossID, "subordinate_id", subID)
			continue
		}
		seen[subID] = true
		accepted = append(accepted, subID)
	}

	// Clear back-references on subordinates being dropped from this boss.
	for _, oldID := range boss.SubordinateIDs {
		if !seen[oldID] {
			if old, ok := r.agents[oldID]; ok && old.BossID == bossID {
				old.BossID = ""
			}
		}
	}

	for _, subID := range accepted {
		sub := r.agents[subID]
		if sub.BossID != "" && sub.BossID != bossID {
			if prev, ok := r.agents[sub.BossID]; ok {
				prev.SubordinateIDs = removeID(prev.SubordinateIDs, subID)
			}
		}
		sub.BossID = bossID
	}
	boss.SubordinateIDs = accepted

	r.logger.Info("subordinates assigned",
		"boss_id", bossID,
		"count", len(accepted),
	)
	return append([]string(nil), accepted...), nil
}

// RemoveSubordinate detaches one subordinate from a boss. A no-op when the
// subordinate was not assigned to that boss.
func (r *Roster) RemoveSubordinate(bossID, subordinateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	boss, ok := r.agents[bossID]
	if !ok {
		return ErrAgentNotFound
	}

	before := len(boss.SubordinateIDs)
	boss.SubordinateIDs = removeID(boss.SubordinateIDs, subordinateID)
	if len(boss.SubordinateIDs) == before {
		return nil
	}
	if sub, ok := r.agents[subordinateID]; ok && sub.BossID == bossID {
		sub.BossID = ""
	}
	return nil
}

// Subordinates returns deep copies of a boss's subordinates in assignment
// order, skipping any id that no longer resolves.
func (r *Roster) Subordinates(bossID string) ([]*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	boss, ok := r.agents[bossID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	subs := make([]*Agent, 0, len(boss.SubordinateIDs))
	for _, id := range boss.SubordinateIDs {
		if sub, ok := r.agents[id]; ok {
			subs = append(subs, sub.Clone())
		}
	}
	return subs, nil
}

// WorkingWithoutProcess returns ids of agents declared working, for the
// orphan poll to reconcile against actual process state. The isTracked
// callback is consulted outside roster invariants but inside the read lock,
// so it must be a cheap map lookup.
func (r *Roster) WorkingWithoutProcess(isTracked func(id string) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, id := range r.order {
		a := r.agents[id]
		if a.Status == StatusWorking && !isTracked(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
