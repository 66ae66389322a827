// ABOUTME: Runtime command execution: reuse stdin, resume a session, or spawn fresh.
// ABOUTME: Holds the stdin watchdog, the single automatic retry in the system.

package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/runner"
)

// systemDirectivePrefix marks internally generated commands. They execute
// normally but never update lastAssignedTask.
const systemDirectivePrefix = "[system]"

// ExecuteRequest is one inbound command for an agent.
type ExecuteRequest struct {
	AgentID      string `json:"agentId"`
	Command      string `json:"command"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	// ForceNewSession discards any resumable session and spawns fresh.
	ForceNewSession bool `json:"forceNewSession,omitempty"`
	// Silent skips all status and task bookkeeping so the dispatch is
	// invisible to observers. Used for background diagnostics.
	Silent bool `json:"silent,omitempty"`
}

// ExecuteCommand resolves the request to a live process write, a session
// resume, or a fresh spawn.
//
// Order of preference: mid-session stdin when the process is live and the
// caller did not force a new session; a resume when the agent is detached
// or holds a session id; a fresh run otherwise.
func (o *Orchestrator) ExecuteCommand(ctx context.Context, req ExecuteRequest) error {
	a, ok := o.roster.Get(req.AgentID)
	if !ok {
		return agent.ErrAgentNotFound
	}
	r := o.runnerFor(a.Provider)
	if r == nil {
		return runner.ErrRunnerNotInitialized
	}

	if r.IsRunning(a.ID) {
		if req.ForceNewSession {
			// A forced session supersedes in-flight state.
			if err := r.Stop(a.ID); err != nil {
				o.logger.Warn("stop before forced session failed", "agent_id", a.ID, "error", err)
			}
			return o.dispatch(ctx, r, a, req, false)
		}
		if !r.SupportsMidSessionInput() {
			// Provider can't take stdin mid-session: replace the process.
			if err := r.Stop(a.ID); err != nil {
				o.logger.Warn("stop before redispatch failed", "agent_id", a.ID, "error", err)
			}
			return o.dispatch(ctx, r, a, req, a.SessionID != "")
		}
		if r.SendMessage(a.ID, req.Command) {
			if !req.Silent {
				o.recordAssignment(a.ID, req.Command)
			}
			o.armWatchdog(a.ID, req)
			return nil
		}
		o.logger.Warn("mid-session send failed, dispatching fresh", "agent_id", a.ID)
	}

	if a.IsDetached && a.SessionID != "" && !req.ForceNewSession {
		o.notice(a.ID, "Reattaching to detached session")
		o.notice(a.ID, "Resuming task: "+truncate(req.Command, o.taskTruncateLen()))
		return o.dispatch(ctx, r, a, req, true)
	}

	resume := a.SessionID != "" && !req.ForceNewSession
	return o.dispatch(ctx, r, a, req, resume)
}

// dispatch starts or resumes a run and hands its event stream to the
// consumer goroutine.
func (o *Orchestrator) dispatch(ctx context.Context, r runner.Runner, a *agent.Agent, req ExecuteRequest, resume bool) error {
	if !req.Silent {
		updated, err := o.roster.Update(a.ID, func(a *agent.Agent) {
			a.Status = agent.StatusWorking
			a.CurrentTask = truncate(req.Command, o.taskTruncateLen())
			a.IsDetached = false
			if !isSystemDirective(req.Command) {
				a.LastAssignedTask = truncate(req.Command, o.taskTruncateLen())
				a.LastAssignedAt = time.Now()
				a.TaskCount++
			}
		})
		if err != nil {
			return err
		}
		o.publishAgent(updated)
	}

	spec := runner.RunSpec{
		AgentID:      a.ID,
		WorkingDir:   a.WorkingDir,
		Prompt:       req.Command,
		SystemPrompt: req.SystemPrompt,
	}
	if resume {
		spec.ResumeSessionID = a.SessionID
	}

	events, err := r.Run(ctx, spec)
	if err != nil {
		if !req.Silent {
			updated, uerr := o.roster.Update(a.ID, func(a *agent.Agent) {
				a.Status = agent.StatusError
				a.CurrentTask = ""
			})
			if uerr == nil {
				o.publishAgent(updated)
			}
		}
		return err
	}

	o.wg.Add(1)
	go o.consume(a.ID, req.Silent, events)
	return nil
}

// recordAssignment updates task bookkeeping after a successful mid-session
// send. Status is untouched: the agent was already working.
func (o *Orchestrator) recordAssignment(agentID, command string) {
	updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
		if !isSystemDirective(command) {
			a.LastAssignedTask = truncate(command, o.taskTruncateLen())
			a.LastAssignedAt = time.Now()
			a.TaskCount++
		}
	})
	if err != nil {
		return
	}
	o.publishAgent(updated)
}

// armWatchdog starts the stuck-session timer for a mid-session send. If no
// activity event arrives within the window the session is respawned once
// with the original command.
func (o *Orchestrator) armWatchdog(agentID string, req ExecuteRequest) {
	if o.cfg.WatchdogWindow <= 0 {
		return
	}
	o.mu.Lock()
	if t, ok := o.watchdogs[agentID]; ok {
		t.Stop()
	}
	o.watchdogs[agentID] = time.AfterFunc(o.cfg.WatchdogWindow, func() {
		o.watchdogFired(agentID, req)
	})
	o.mu.Unlock()
}

// cancelWatchdog clears the timer for an agent. Any runner event counts as
// activity.
func (o *Orchestrator) cancelWatchdog(agentID string) {
	o.mu.Lock()
	if t, ok := o.watchdogs[agentID]; ok {
		t.Stop()
		delete(o.watchdogs, agentID)
	}
	o.mu.Unlock()
}

// watchdogFired respawns a stuck session: stop, then resume with the same
// command and system prompt. The respawned dispatch does not arm another
// watchdog, so the retry happens at most once per send.
func (o *Orchestrator) watchdogFired(agentID string, req ExecuteRequest) {
	o.mu.Lock()
	delete(o.watchdogs, agentID)
	o.mu.Unlock()

	a, ok := o.roster.Get(agentID)
	if !ok {
		return
	}
	r := o.runnerFor(a.Provider)
	if r == nil {
		return
	}

	o.logger.Warn("watchdog fired, respawning session", "agent_id", agentID)
	o.notice(agentID, "Session unresponsive, restarting")

	if r.IsRunning(agentID) {
		if err := r.Stop(agentID); err != nil {
			o.logger.Warn("watchdog stop failed", "agent_id", agentID, "error", err)
		}
	}
	if err := o.dispatch(o.baseCtx, r, a, req, a.SessionID != ""); err != nil {
		o.logger.Error("watchdog respawn failed", "agent_id", agentID, "error", err)
	}
}

func (o *Orchestrator) taskTruncateLen() int {
	if o.cfg.TaskTruncateLen > 0 {
		return o.cfg.TaskTruncateLen
	}
	return 120
}

func isSystemDirective(command string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(command)), systemDirectivePrefix)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
