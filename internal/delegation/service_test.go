// ABOUTME: Tests for the delegation service: routing, fallback, and decision recording.
// ABOUTME: Judgment failures are injected through a stub caller.

package delegation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/store"
)

type stubJudge struct {
	response string
	err      error
	delay    time.Duration
	prompts  []string
}

func (j *stubJudge) Judge(ctx context.Context, prompt string) (string, error) {
	j.prompts = append(j.prompts, prompt)
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return j.response, j.err
}

type captureNotifier struct {
	decisions []*store.DelegationDecision
}

func (n *captureNotifier) DelegationDecision(d *store.DelegationDecision) {
	cp := *d
	n.decisions = append(n.decisions, &cp)
}

func delegationFixture(t *testing.T, judge JudgmentCaller) (*Service, *store.MockStore, *captureNotifier) {
	t.Helper()
	roster := agent.NewRoster(nil)
	for _, a := range []*agent.Agent{
		{ID: "boss", Name: "boss", Class: agent.ClassBoss, Provider: "claude"},
		{ID: "s1", Name: "frontend", Class: agent.ClassBuilder, Provider: "claude"},
		{ID: "s2", Name: "backend", Class: agent.ClassBuilder, Provider: "claude"},
	} {
		require.NoError(t, roster.Add(a))
	}
	_, err := roster.AssignSubordinates("boss", []string{"s1", "s2"})
	require.NoError(t, err)

	st := store.NewMockStore()
	notify := &captureNotifier{}
	svc := NewService(roster, judge, st, notify, time.Second, nil)
	return svc, st, notify
}

func TestService_Delegate_JudgmentSelects(t *testing.T) {
	judge := &stubJudge{response: `{"selectedAgent": "s2", "reasoning": "backend task", "alternatives": ["s1"], "confidence": "high"}`}
	svc, st, notify := delegationFixture(t, judge)

	d, err := svc.Delegate(context.Background(), "boss", "fix the API handler")
	require.NoError(t, err)
	assert.Equal(t, "s2", d.SelectedAgentID)
	assert.Equal(t, "backend", d.SelectedAgentName)
	assert.Equal(t, store.ConfidenceHigh, d.Confidence)
	assert.Equal(t, store.DecisionSent, d.Status)
	assert.Equal(t, []string{"s1"}, d.AlternativeAgents)

	// Pending first, then sent, same decision id.
	require.Len(t, notify.decisions, 2)
	assert.Equal(t, store.DecisionPending, notify.decisions[0].Status)
	assert.Equal(t, store.DecisionSent, notify.decisions[1].Status)
	assert.Equal(t, notify.decisions[0].ID, notify.decisions[1].ID)

	// History holds the replaced (sent) row.
	hist, err := st.ListDelegationDecisions(context.Background(), "boss", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, store.DecisionSent, hist[0].Status)
}

func TestService_Delegate_JudgmentErrorFallsBack(t *testing.T) {
	judge := &stubJudge{err: errors.New("claude exploded")}
	svc, _, _ := delegationFixture(t, judge)

	// Make s1 busy so the fallback prefers idle s2.
	roster := svc.roster
	_, err := roster.Update("s1", func(a *agent.Agent) { a.Status = agent.StatusWorking })
	require.NoError(t, err)

	d, err := svc.Delegate(context.Background(), "boss", "do something")
	require.NoError(t, err)
	assert.Equal(t, "s2", d.SelectedAgentID)
	assert.Equal(t, store.ConfidenceLow, d.Confidence)
	assert.Equal(t, fallbackReasoning, d.Reasoning)
	assert.Equal(t, store.DecisionSent, d.Status)
}

func TestService_Delegate_JudgmentTimeoutFallsBack(t *testing.T) {
	judge := &stubJudge{delay: 5 * time.Second, response: `{"selectedAgent": "s2"}`}
	svc, _, _ := delegationFixture(t, judge)
	svc.timeout = 20 * time.Millisecond

	d, err := svc.Delegate(context.Background(), "boss", "slow judgment")
	require.NoError(t, err)
	assert.Equal(t, "s1", d.SelectedAgentID)
	assert.Equal(t, store.ConfidenceLow, d.Confidence)
}

func TestService_Delegate_GarbageOutputFallsBack(t *testing.T) {
	judge := &stubJudge{response: "I would pick whoever feels right today."}
	svc, _, _ := delegationFixture(t, judge)

	d, err := svc.Delegate(context.Background(), "boss", "route this")
	require.NoError(t, err)
	assert.Equal(t, "s1", d.SelectedAgentID)
	assert.Equal(t, fallbackReasoning, d.Reasoning)
}

func TestService_Delegate_NilJudgeFallsBack(t *testing.T) {
	svc, _, _ := delegationFixture(t, nil)

	d, err := svc.Delegate(context.Background(), "boss", "route this")
	require.NoError(t, err)
	assert.Equal(t, "s1", d.SelectedAgentID)
	assert.Equal(t, store.ConfidenceLow, d.Confidence)
}

func TestService_Delegate_NotBoss(t *testing.T) {
	svc, _, _ := delegationFixture(t, &stubJudge{})

	_, err := svc.Delegate(context.Background(), "s1", "anything")
	assert.ErrorIs(t, err, ErrNotBoss)
}

func TestService_Delegate_NoSubordinates(t *testing.T) {
	judge := &stubJudge{}
	svc, _, _ := delegationFixture(t, judge)
	_, err := svc.roster.AssignSubordinates("boss", nil)
	require.NoError(t, err)

	_, err = svc.Delegate(context.Background(), "boss", "anything")
	assert.ErrorIs(t, err, ErrNoSubordinates)
	assert.Empty(t, judge.prompts, "judgment must not run without subordinates")
}

func TestService_Delegate_UnknownBoss(t *testing.T) {
	svc, _, _ := delegationFixture(t, &stubJudge{})

	_, err := svc.Delegate(context.Background(), "ghost", "anything")
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)
}

func TestService_Delegate_StoreFailureStillRoutes(t *testing.T) {
	judge := &stubJudge{response: `{"selectedAgent": "s1", "confidence": "high"}`}
	svc, st, _ := delegationFixture(t, judge)
	st.FailSaves = errors.New("disk full")

	d, err := svc.Delegate(context.Background(), "boss", "route despite store failure")
	require.NoError(t, err)
	assert.Equal(t, "s1", d.SelectedAgentID)
}

func TestService_Delegate_PromptIncludesSnapshot(t *testing.T) {
	judge := &stubJudge{response: `{"selectedAgent": "s1"}`}
	svc, _, _ := delegationFixture(t, judge)
	_, err := svc.roster.Update("s2", func(a *agent.Agent) {
		a.CurrentTask = "migrating the schema"
		a.ContextUsed = 100000
		a.ContextLimit = 200000
	})
	require.NoError(t, err)
	svc.RecordWork("s1", "shipped the login page")

	_, err = svc.Delegate(context.Background(), "boss", "style the dashboard")
	require.NoError(t, err)

	require.Len(t, judge.prompts, 1)
	prompt := judge.prompts[0]
	assert.Contains(t, prompt, "migrating the schema")
	assert.Contains(t, prompt, "shipped the login page")
	assert.Contains(t, prompt, "context_used=50%")
	assert.Contains(t, prompt, "style the dashboard")
}

func TestFallbackPick_PrefersIdle(t *testing.T) {
	subs := []SubordinateContext{
		{ID: "a", Status: "working"},
		{ID: "b", Status: "idle"},
		{ID: "c", Status: "idle"},
	}
	assert.Equal(t, "b", fallbackPick(subs).ID)
}

func TestFallbackPick_NoIdleTakesFirst(t *testing.T) {
	subs := []SubordinateContext{
		{ID: "a", Status: "working"},
		{ID: "b", Status: "error"},
	}
	assert.Equal(t, "a", fallbackPick(subs).ID)
}
