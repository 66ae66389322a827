// ABOUTME: Store interface and data types for roost persistence.
// ABOUTME: Defines DelegationDecision, RememberedPattern, LedgerEvent and the Store interface.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// DecisionStatus tracks the lifecycle of a delegation decision.
type DecisionStatus string

const (
	// DecisionPending is emitted before the judgment call, so observers can
	// show the routing as in progress.
	DecisionPending DecisionStatus = "pending"
	// DecisionSent means a subordinate was selected, possibly via fallback.
	DecisionSent DecisionStatus = "sent"
)

// Confidence grades how sure the judgment call was about a selection.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceMed  Confidence = "medium"
	ConfidenceLow  Confidence = "low"
)

// DelegationDecision records one routing outcome for a boss agent. Once the
// status leaves pending the record is never mutated again.
type DelegationDecision struct {
	ID                string         `json:"id"`
	Timestamp         time.Time      `json:"timestamp"`
	BossID            string         `json:"bossId"`
	UserCommand       string         `json:"userCommand"`
	SelectedAgentID   string         `json:"selectedAgentId,omitempty"`
	SelectedAgentName string         `json:"selectedAgentName,omitempty"`
	Reasoning         string         `json:"reasoning,omitempty"`
	AlternativeAgents []string       `json:"alternativeAgents,omitempty"`
	Confidence        Confidence     `json:"confidence,omitempty"`
	Status            DecisionStatus `json:"status"`
}

// RememberedPattern is a persisted auto-approval rule derived from an
// approved permission request. Unique by (tool, pattern).
type RememberedPattern struct {
	Tool        string    `json:"tool"`
	Pattern     string    `json:"pattern"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LedgerEvent is one broadcast event persisted for observer backfill and
// the admin history view.
type LedgerEvent struct {
	ID        string
	AgentID   string // empty for events not scoped to one agent
	Type      string
	Payload   string // JSON as broadcast
	Timestamp time.Time
}

// Store is the persistence surface consumed by the orchestration core.
// Every mutation is write-through; the core never batches.
type Store interface {
	// SaveDelegationDecision inserts a decision, or replaces the row when a
	// pending decision is finalized under the same id.
	SaveDelegationDecision(ctx context.Context, d *DelegationDecision) error
	// ListDelegationDecisions returns a boss's decisions, newest first.
	ListDelegationDecisions(ctx context.Context, bossID string, limit int) ([]*DelegationDecision, error)

	// SaveRememberedPattern persists a pattern. Re-adding an existing
	// (tool, pattern) pair is a no-op.
	SaveRememberedPattern(ctx context.Context, p *RememberedPattern) error
	ListRememberedPatterns(ctx context.Context) ([]*RememberedPattern, error)

	// SaveEvent appends a broadcast event to the ledger.
	SaveEvent(ctx context.Context, e *LedgerEvent) error
	// ListEventsSince returns ledger events at or after the given time, in
	// timestamp order, capped at limit.
	ListEventsSince(ctx context.Context, since time.Time, limit int) ([]*LedgerEvent, error)

	Close() error
}
