// ABOUTME: The orchestrator owns agent lifecycle: spawn, stop, remove, hierarchy edits.
// ABOUTME: All agent state mutations funnel through here and are broadcast to observers.

package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/broadcast"
	"github.com/2389/roost/internal/config"
	"github.com/2389/roost/internal/delegation"
	"github.com/2389/roost/internal/permission"
	"github.com/2389/roost/internal/probe"
	"github.com/2389/roost/internal/runner"
	"github.com/2389/roost/internal/store"
)

// ErrInvalidSpawn indicates a spawn request with missing or bad fields.
var ErrInvalidSpawn = errors.New("invalid spawn request")

// ActivityChecker is the session-activity probe consumed by reconciliation.
type ActivityChecker interface {
	IsActive(cwd, sessionID string, window time.Duration) probe.Activity
}

// ProcessChecker is the OS process probe consumed by reconciliation and the
// stop path.
type ProcessChecker interface {
	IsProviderProcessRunningInCwd(provider, cwd string) bool
	KillDetachedProcesses(provider, cwd string) int
}

// Orchestrator coordinates the roster, per-provider runners, permission
// gating, delegation and the observer broadcast hub.
type Orchestrator struct {
	roster   *agent.Roster
	runners  map[string]runner.Runner
	hub      *broadcast.Hub
	perms    *permission.Service
	deleg    *delegation.Service
	activity ActivityChecker
	procs    ProcessChecker
	cfg      config.OrchestratorConfig
	logger   *slog.Logger

	mu        sync.Mutex
	watchdogs map[string]*time.Timer

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Options carries the orchestrator's collaborators. Roster, Runners and Hub
// are required; the rest may be nil and the matching feature is disabled.
type Options struct {
	Roster      *agent.Roster
	Runners     map[string]runner.Runner
	Hub         *broadcast.Hub
	Permissions *permission.Service
	Delegation  *delegation.Service
	Activity    ActivityChecker
	Processes   ProcessChecker
	Config      config.OrchestratorConfig
	Logger      *slog.Logger
}

// New creates an orchestrator. Call Start to launch the background pollers
// and Close to tear everything down.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		roster:    opts.Roster,
		runners:   opts.Runners,
		hub:       opts.Hub,
		perms:     opts.Permissions,
		deleg:     opts.Delegation,
		activity:  opts.Activity,
		procs:     opts.Processes,
		cfg:       opts.Config,
		logger:    logger.With("component", "orchestrator"),
		watchdogs: make(map[string]*time.Timer),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Start launches the orphan poll and the context-usage probe.
func (o *Orchestrator) Start() {
	if o.cfg.OrphanPollInterval > 0 {
		o.wg.Add(1)
		go o.orphanPollLoop()
	}
	if o.cfg.ContextProbeInterval > 0 {
		o.wg.Add(1)
		go o.contextProbeLoop()
	}
}

// Close stops the pollers, cancels every watchdog and terminates all
// tracked worker processes.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	for id, t := range o.watchdogs {
		t.Stop()
		delete(o.watchdogs, id)
	}
	o.mu.Unlock()

	for _, a := range o.roster.List() {
		if r := o.runnerFor(a.Provider); r != nil && r.IsRunning(a.ID) {
			if err := r.Stop(a.ID); err != nil {
				o.logger.Warn("stop on shutdown failed", "agent_id", a.ID, "error", err)
			}
		}
	}
}

// SpawnRequest describes a new agent.
type SpawnRequest struct {
	Name       string `json:"name"`
	Class      string `json:"class"`
	Provider   string `json:"provider"`
	WorkingDir string `json:"workingDir"`
}

// Spawn creates an agent in the roster. No process is started until the
// first command arrives.
func (o *Orchestrator) Spawn(req SpawnRequest) (*agent.Agent, error) {
	if req.Name == "" || req.WorkingDir == "" {
		return nil, ErrInvalidSpawn
	}
	class := agent.Class(req.Class)
	if !agent.ValidClass(class) {
		return nil, ErrInvalidSpawn
	}
	provider := req.Provider
	if provider == "" {
		provider = "claude"
	}
	if o.runnerFor(provider) == nil {
		return nil, runner.ErrRunnerNotInitialized
	}

	a := &agent.Agent{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Class:      class,
		Provider:   provider,
		WorkingDir: req.WorkingDir,
	}
	if err := o.roster.Add(a); err != nil {
		return nil, err
	}
	added, _ := o.roster.Get(a.ID)
	o.publishAgent(added)
	o.logger.Info("agent spawned", "agent_id", a.ID, "name", a.Name, "class", a.Class)
	return added, nil
}

// Stop terminates the agent's tracked process, kills any detached provider
// process in its working directory, cancels pending permission requests
// and resets the agent to idle.
func (o *Orchestrator) Stop(agentID string) error {
	a, ok := o.roster.Get(agentID)
	if !ok {
		return agent.ErrAgentNotFound
	}

	o.cancelWatchdog(agentID)

	if r := o.runnerFor(a.Provider); r != nil && r.IsRunning(agentID) {
		if err := r.Stop(agentID); err != nil {
			o.logger.Warn("runner stop failed", "agent_id", agentID, "error", err)
		}
	}
	if o.procs != nil {
		if n := o.procs.KillDetachedProcesses(a.Provider, a.WorkingDir); n > 0 {
			o.logger.Info("killed detached processes", "agent_id", agentID, "count", n)
		}
	}
	if o.perms != nil {
		o.perms.CancelForAgent(agentID)
	}

	updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
		a.Status = agent.StatusIdle
		a.CurrentTask = ""
		a.CurrentTool = ""
		a.IsDetached = false
	})
	if err != nil {
		return err
	}
	o.publishAgent(updated)
	return nil
}

// Remove stops the agent, deletes it from the roster, detaches it from its
// boss and discards its output dedup state.
func (o *Orchestrator) Remove(agentID string) error {
	if err := o.Stop(agentID); err != nil {
		return err
	}
	removed, err := o.roster.Remove(agentID)
	if err != nil {
		return err
	}
	o.hub.DropAgent(agentID)
	o.hub.Publish(broadcast.Event{
		Type:    broadcast.EventAgentRemoved,
		AgentID: agentID,
		Payload: removed,
	})
	o.logger.Info("agent removed", "agent_id", agentID)
	return nil
}

// AssignSubordinates replaces a boss's subordinate list and broadcasts the
// affected agents. Returns the accepted ids.
func (o *Orchestrator) AssignSubordinates(bossID string, subordinateIDs []string) ([]string, error) {
	accepted, err := o.roster.AssignSubordinates(bossID, subordinateIDs)
	if err != nil {
		return nil, err
	}
	o.publishAgentByID(bossID)
	for _, id := range accepted {
		o.publishAgentByID(id)
	}
	return accepted, nil
}

// RemoveSubordinate detaches one subordinate from its boss.
func (o *Orchestrator) RemoveSubordinate(bossID, subordinateID string) error {
	if err := o.roster.RemoveSubordinate(bossID, subordinateID); err != nil {
		return err
	}
	o.publishAgentByID(bossID)
	o.publishAgentByID(subordinateID)
	return nil
}

// RespondPermission forwards a caller's answer to the permission service.
// Returns false when no matching request is pending.
func (o *Orchestrator) RespondPermission(ctx context.Context, resp permission.Response) bool {
	if o.perms == nil {
		return false
	}
	return o.perms.Respond(ctx, resp)
}

// Delegate routes a boss's command to a subordinate and dispatches it.
func (o *Orchestrator) Delegate(ctx context.Context, bossID, command string) (*store.DelegationDecision, error) {
	if o.deleg == nil {
		return nil, errors.New("delegation not configured")
	}
	d, err := o.deleg.Delegate(ctx, bossID, command)
	if err != nil {
		return nil, err
	}
	if err := o.ExecuteCommand(ctx, ExecuteRequest{
		AgentID: d.SelectedAgentID,
		Command: command,
	}); err != nil {
		o.logger.Warn("delegated dispatch failed",
			"boss_id", bossID, "agent_id", d.SelectedAgentID, "error", err)
	}
	return d, nil
}

// Agents returns a snapshot of the roster.
func (o *Orchestrator) Agents() []*agent.Agent {
	return o.roster.List()
}

func (o *Orchestrator) runnerFor(provider string) runner.Runner {
	if o.runners == nil {
		return nil
	}
	return o.runners[provider]
}

func (o *Orchestrator) publishAgent(a *agent.Agent) {
	o.hub.Publish(broadcast.Event{
		Type:    broadcast.EventAgentUpdated,
		AgentID: a.ID,
		Payload: a,
	})
}

func (o *Orchestrator) publishAgentByID(id string) {
	if a, ok := o.roster.Get(id); ok {
		o.publishAgent(a)
	}
}

func (o *Orchestrator) notice(agentID, message string) {
	o.hub.Publish(broadcast.Event{
		Type:    broadcast.EventSystemNotice,
		AgentID: agentID,
		Payload: broadcast.NoticePayload{Message: message},
	})
}
