// ABOUTME: Tests for the SQLite store against an in-memory database.
// ABOUTME: Validates decision history, pattern dedup, and ledger queries.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveDelegationDecision_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	d := &DelegationDecision{
		ID:                "dec-1",
		Timestamp:         time.Now(),
		BossID:            "boss-1",
		UserCommand:       "fix the login bug",
		SelectedAgentID:   "a1",
		SelectedAgentName: "builder-1",
		Reasoning:         "idle and familiar with auth code",
		AlternativeAgents: []string{"a2", "a3"},
		Confidence:        ConfidenceHigh,
		Status:            DecisionSent,
	}
	require.NoError(t, s.SaveDelegationDecision(ctx, d))

	got, err := s.ListDelegationDecisions(ctx, "boss-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dec-1", got[0].ID)
	assert.Equal(t, []string{"a2", "a3"}, got[0].AlternativeAgents)
	assert.Equal(t, ConfidenceHigh, got[0].Confidence)
	assert.Equal(t, DecisionSent, got[0].Status)
}

func TestSQLiteStore_SaveDelegationDecision_FinalizeReplacesPending(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	pending := &DelegationDecision{
		ID:          "dec-1",
		Timestamp:   time.Now(),
		BossID:      "boss-1",
		UserCommand: "refactor",
		Status:      DecisionPending,
	}
	require.NoError(t, s.SaveDelegationDecision(ctx, pending))

	finalized := *pending
	finalized.SelectedAgentID = "a1"
	finalized.Status = DecisionSent
	require.NoError(t, s.SaveDelegationDecision(ctx, &finalized))

	got, err := s.ListDelegationDecisions(ctx, "boss-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, DecisionSent, got[0].Status)
}

func TestSQLiteStore_ListDelegationDecisions_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.SaveDelegationDecision(ctx, &DelegationDecision{
			ID:          id,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			BossID:      "boss-1",
			UserCommand: "cmd",
			Status:      DecisionSent,
		}))
	}

	got, err := s.ListDelegationDecisions(ctx, "boss-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
}

func TestSQLiteStore_SaveRememberedPattern_Dedup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := &RememberedPattern{Tool: "Write", Pattern: "/tmp/project/", Description: "project dir"}
	require.NoError(t, s.SaveRememberedPattern(ctx, p))
	// Re-adding the same (tool, pattern) is a no-op.
	require.NoError(t, s.SaveRememberedPattern(ctx, &RememberedPattern{
		Tool: "Write", Pattern: "/tmp/project/", Description: "changed",
	}))

	got, err := s.ListRememberedPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "project dir", got[0].Description)
}

func TestSQLiteStore_Ledger_Since(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	cutoff := time.Now()
	require.NoError(t, s.SaveEvent(ctx, &LedgerEvent{
		ID: "e-old", Type: "agent_updated", Payload: "{}", Timestamp: cutoff.Add(-time.Minute),
	}))
	require.NoError(t, s.SaveEvent(ctx, &LedgerEvent{
		ID: "e-new", AgentID: "a1", Type: "output", Payload: `{"line":"hi"}`, Timestamp: cutoff.Add(time.Minute),
	}))

	got, err := s.ListEventsSince(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e-new", got[0].ID)
	assert.Equal(t, "a1", got[0].AgentID)
}
