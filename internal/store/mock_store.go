// ABOUTME: Mock Store implementation for testing.
// ABOUTME: Allows tests to run without SQLite.

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	decisions map[string]*DelegationDecision // keyed by decision ID
	patterns  map[string]*RememberedPattern  // keyed by "tool\x00pattern"
	events    []*LedgerEvent

	// FailSaves makes every save return this error when non-nil.
	FailSaves error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		decisions: make(map[string]*DelegationDecision),
		patterns:  make(map[string]*RememberedPattern),
	}
}

// SaveDelegationDecision inserts or replaces a decision.
func (m *MockStore) SaveDelegationDecision(_ context.Context, d *DelegationDecision) error {
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	cp.AlternativeAgents = append([]string(nil), d.AlternativeAgents...)
	m.decisions[d.ID] = &cp
	return nil
}

// ListDelegationDecisions returns a boss's decisions, newest first.
func (m *MockStore) ListDelegationDecisions(_ context.Context, bossID string, limit int) ([]*DelegationDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*DelegationDecision
	for _, d := range m.decisions {
		if d.BossID == bossID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveRememberedPattern persists a pattern; duplicates are no-ops.
func (m *MockStore) SaveRememberedPattern(_ context.Context, p *RememberedPattern) error {
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.Tool + "\x00" + p.Pattern
	if _, exists := m.patterns[key]; exists {
		return nil
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.patterns[key] = &cp
	return nil
}

// ListRememberedPatterns returns all patterns ordered by creation time.
func (m *MockStore) ListRememberedPatterns(_ context.Context) ([]*RememberedPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RememberedPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Tool+out[i].Pattern < out[j].Tool+out[j].Pattern
	})
	return out, nil
}

// SaveEvent appends an event to the in-memory ledger.
func (m *MockStore) SaveEvent(_ context.Context, e *LedgerEvent) error {
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	m.events = append(m.events, &cp)
	return nil
}

// ListEventsSince returns events at or after since in timestamp order.
func (m *MockStore) ListEventsSince(_ context.Context, since time.Time, limit int) ([]*LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*LedgerEvent
	for _, e := range m.events {
		if !e.Timestamp.Before(since) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error { return nil }
