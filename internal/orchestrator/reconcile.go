// ABOUTME: Status reconciliation: startup sweep and the periodic orphan poll.
// ABOUTME: Keeps declared agent status consistent with real OS and session state.

package orchestrator

import (
	"time"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/probe"
)

const (
	detachedTaskLabel   = "Processing (detached)..."
	optimisticTaskLabel = "Processing..."
	contextProbeCommand = systemDirectivePrefix + " Respond with a single word: ok."
)

// StartupSweep reconciles every agent once. The server runs this when a new
// observer connects, before sending the agent snapshot.
func (o *Orchestrator) StartupSweep() {
	for _, a := range o.roster.List() {
		o.reconcileAgent(a, true)
	}
}

// orphanPollLoop periodically reconciles agents that claim to be working
// but have no tracked process handle.
func (o *Orchestrator) orphanPollLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.OrphanPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.baseCtx.Done():
			return
		case <-ticker.C:
			o.pollOrphans()
		}
	}
}

func (o *Orchestrator) pollOrphans() {
	ids := o.roster.WorkingWithoutProcess(func(id string) bool {
		r := o.runnerByAgent(id)
		return r != nil && r.IsRunning(id)
	})
	for _, id := range ids {
		if a, ok := o.roster.Get(id); ok {
			o.reconcileAgent(a, false)
		}
	}
}

// reconcileAgent applies the shared reconciliation rule to one agent.
//
// A tracked process handle is trusted outright. Without one, the session
// activity heuristic and the orphan process probe are consulted
// independently: either can be stale on its own. The optimistic
// idle-to-working branch runs only on the startup sweep; the periodic poll
// stays conservative.
func (o *Orchestrator) reconcileAgent(a *agent.Agent, startup bool) {
	if r := o.runnerFor(a.Provider); r != nil && r.IsRunning(a.ID) {
		return
	}
	if a.SessionID == "" || a.WorkingDir == "" {
		return
	}

	active := probe.ActivityUnknown
	if o.activity != nil {
		active = o.activity.IsActive(a.WorkingDir, a.SessionID, o.cfg.ActivityWindow)
	}

	switch {
	case a.Status == agent.StatusWorking && active != probe.ActivityActive:
		if o.orphanAlive(a) {
			return
		}
		updated, err := o.roster.Update(a.ID, func(a *agent.Agent) {
			a.Status = agent.StatusIdle
			a.CurrentTask = ""
			a.CurrentTool = ""
			a.IsDetached = false
		})
		if err != nil {
			return
		}
		o.logger.Info("reconciled stale working agent to idle", "agent_id", a.ID)
		o.publishAgent(updated)

	case a.Status == agent.StatusIdle && active == probe.ActivityActive && o.orphanAlive(a):
		updated, err := o.roster.Update(a.ID, func(a *agent.Agent) {
			a.Status = agent.StatusWorking
			a.CurrentTask = detachedTaskLabel
			a.IsDetached = true
		})
		if err != nil {
			return
		}
		o.logger.Info("detected detached working agent", "agent_id", a.ID)
		o.publishAgent(updated)

	case startup && a.Status == agent.StatusIdle && active == probe.ActivityActive:
		// Optimistic: recent session activity alone is enough at startup.
		// The next orphan poll corrects this if the process is gone.
		updated, err := o.roster.Update(a.ID, func(a *agent.Agent) {
			a.Status = agent.StatusWorking
			a.CurrentTask = optimisticTaskLabel
		})
		if err != nil {
			return
		}
		o.logger.Info("optimistically marked agent working", "agent_id", a.ID)
		o.publishAgent(updated)
	}
}

func (o *Orchestrator) orphanAlive(a *agent.Agent) bool {
	if o.procs == nil {
		return false
	}
	return o.procs.IsProviderProcessRunningInCwd(a.Provider, a.WorkingDir)
}

// contextProbeLoop periodically issues a silent dispatch to every live
// session so the result event refreshes context accounting.
func (o *Orchestrator) contextProbeLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ContextProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.baseCtx.Done():
			return
		case <-ticker.C:
			o.probeContext()
		}
	}
}

func (o *Orchestrator) probeContext() {
	for _, a := range o.roster.List() {
		r := o.runnerFor(a.Provider)
		if r == nil || !r.IsRunning(a.ID) {
			continue
		}
		err := o.ExecuteCommand(o.baseCtx, ExecuteRequest{
			AgentID: a.ID,
			Command: contextProbeCommand,
			Silent:  true,
		})
		if err != nil {
			o.logger.Debug("context probe failed", "agent_id", a.ID, "error", err)
		}
	}
}
