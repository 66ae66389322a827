// ABOUTME: HTTP and WebSocket endpoint tests against an in-memory orchestrator.
// ABOUTME: Uses httptest plus a stub runner; no real processes are spawned.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/broadcast"
	"github.com/2389/roost/internal/config"
	"github.com/2389/roost/internal/dedupe"
	"github.com/2389/roost/internal/orchestrator"
	"github.com/2389/roost/internal/runner"
	"github.com/2389/roost/internal/store"
)

// stubRunner accepts every dispatch and ends each stream immediately.
type stubRunner struct{}

func newStubRunner() *stubRunner { return &stubRunner{} }

func (s *stubRunner) Run(_ context.Context, spec runner.RunSpec) (<-chan runner.Event, error) {
	ch := make(chan runner.Event, 16)
	ch <- runner.Event{AgentID: spec.AgentID, Type: runner.EventExit}
	close(ch)
	return ch, nil
}

func (s *stubRunner) SendMessage(string, string) bool { return false }

func (s *stubRunner) RespondPermission(string, string, bool, string) bool { return true }

func (s *stubRunner) IsRunning(string) bool { return false }

func (s *stubRunner) Stop(string) error { return nil }

func (s *stubRunner) SupportsMidSessionInput() bool { return true }

func testServer(t *testing.T) (*Server, *agent.Roster, *store.MockStore) {
	t.Helper()
	roster := agent.NewRoster(nil)
	st := store.NewMockStore()
	hub := broadcast.NewHub(dedupe.NewTracker(16), st, nil)
	t.Cleanup(hub.Close)

	orch := orchestrator.New(orchestrator.Options{
		Roster:  roster,
		Runners: map[string]runner.Runner{"claude": newStubRunner()},
		Hub:     hub,
		Config:  config.OrchestratorConfig{TaskTruncateLen: 120},
	})
	t.Cleanup(orch.Close)

	return New("127.0.0.1:0", orch, hub, st, nil), roster, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_SpawnAndList(t *testing.T) {
	srv, _, _ := testServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/agents", map[string]string{
		"name":       "worker-1",
		"class":      "builder",
		"workingDir": "/tmp/work",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created agent.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, agent.StatusIdle, created.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agents []agent.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, created.ID, agents[0].ID)
}

func TestServer_Spawn_InvalidClass(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/agents", map[string]string{
		"name":       "x",
		"class":      "wizard",
		"workingDir": "/tmp",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Command_Accepted(t *testing.T) {
	srv, roster, _ := testServer(t)
	require.NoError(t, roster.Add(&agent.Agent{
		ID: "a1", Name: "w", Class: agent.ClassBuilder, Provider: "claude", WorkingDir: "/tmp",
	}))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/agents/a1/command", map[string]string{
		"command": "build it",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_Command_UnknownAgent(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/agents/ghost/command", map[string]string{
		"command": "build it",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StopAndRemove(t *testing.T) {
	srv, roster, _ := testServer(t)
	require.NoError(t, roster.Add(&agent.Agent{
		ID: "a1", Name: "w", Class: agent.ClassBuilder, Provider: "claude", WorkingDir: "/tmp",
	}))
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/agents/a1/stop", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/agents/a1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/agents/a1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AssignSubordinates(t *testing.T) {
	srv, roster, _ := testServer(t)
	require.NoError(t, roster.Add(&agent.Agent{
		ID: "boss", Name: "b", Class: agent.ClassBoss, Provider: "claude", WorkingDir: "/tmp",
	}))
	require.NoError(t, roster.Add(&agent.Agent{
		ID: "s1", Name: "s", Class: agent.ClassBuilder, Provider: "claude", WorkingDir: "/tmp",
	}))
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/agents/boss/subordinates", map[string]any{
		"subordinateIds": []string{"s1", "ghost"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Accepted []string `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"s1"}, resp.Accepted)

	rec = doJSON(t, h, http.MethodDelete, "/api/agents/boss/subordinates/s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	a, ok := roster.Get("s1")
	require.True(t, ok)
	assert.Empty(t, a.BossID)
}

func TestServer_PermissionRespond_NotHandled(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/permissions/respond", map[string]any{
		"requestId": "nope",
		"approved":  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["handled"])
}

func TestServer_DelegationHistory_RequiresBoss(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/delegations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DelegationHistory_ReturnsDecisions(t *testing.T) {
	srv, _, st := testServer(t)
	require.NoError(t, st.SaveDelegationDecision(context.Background(), &store.DelegationDecision{
		ID:        "d1",
		Timestamp: time.Now(),
		BossID:    "boss",
		Status:    store.DecisionSent,
	}))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/delegations?boss=boss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decisions []store.DelegationDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decisions))
	require.Len(t, decisions, 1)
	assert.Equal(t, "d1", decisions[0].ID)
}

func TestServer_WebSocket_SnapshotFirst(t *testing.T) {
	srv, roster, _ := testServer(t)
	require.NoError(t, roster.Add(&agent.Agent{
		ID: "a1", Name: "w", Class: agent.ClassBuilder, Provider: "claude", WorkingDir: "/tmp",
	}))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev struct {
		Type    string            `json:"type"`
		Payload []json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, string(broadcast.EventAgentsSnapshot), ev.Type)
	assert.Len(t, ev.Payload, 1)
}

func TestServer_WebSocket_InvalidSince(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws?since=notatime", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
