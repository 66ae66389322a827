// ABOUTME: Consumes a runner's event stream and folds it back into agent state.
// ABOUTME: Bridges worker permission requests into the gating service.

package orchestrator

import (
	"github.com/2389/roost/internal/agent"
	"github.com/2389/roost/internal/permission"
	"github.com/2389/roost/internal/runner"
)

// consume folds one session's event stream into roster state and observer
// broadcasts. A silent dispatch still records session ids and context
// stats but performs no status or task mutation and emits no output.
func (o *Orchestrator) consume(agentID string, silent bool, events <-chan runner.Event) {
	defer o.wg.Done()

	for ev := range events {
		o.cancelWatchdog(agentID)

		switch ev.Type {
		case runner.EventInit:
			updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
				a.SessionID = ev.SessionID
			})
			if err == nil && !silent {
				o.publishAgent(updated)
			}

		case runner.EventToolStart:
			if silent {
				continue
			}
			updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
				a.CurrentTool = ev.Tool
			})
			if err == nil {
				o.publishAgent(updated)
			}

		case runner.EventToolResult:
			if silent {
				continue
			}
			updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
				a.CurrentTool = ""
			})
			if err == nil {
				o.publishAgent(updated)
			}

		case runner.EventOutput:
			if silent {
				continue
			}
			o.hub.PublishOutput(agentID, ev.Line, !ev.Final)
			if ev.Final && o.deleg != nil {
				o.deleg.RecordWork(agentID, ev.Line)
			}

		case runner.EventContextStats:
			// Context accounting updates even on silent dispatches; that
			// is what the background probe exists for.
			updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
				a.ContextUsed = ev.ContextUsed
				a.ContextLimit = ev.ContextLimit
			})
			if err == nil {
				o.publishAgent(updated)
			}

		case runner.EventPermissionRequest:
			o.handlePermissionRequest(agentID, ev)

		case runner.EventError:
			if silent {
				continue
			}
			updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
				a.Status = agent.StatusError
			})
			if err == nil {
				o.publishAgent(updated)
			}

		case runner.EventStepComplete:
			if silent {
				continue
			}
			updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
				a.Status = agent.StatusIdle
				a.CurrentTask = ""
				a.CurrentTool = ""
			})
			if err == nil {
				o.publishAgent(updated)
			}

		case runner.EventExit:
			o.handleExit(agentID, silent, ev)
		}
	}
}

// handlePermissionRequest registers the worker's request with the gating
// service and forwards the eventual decision back down the control channel.
func (o *Orchestrator) handlePermissionRequest(agentID string, ev runner.Event) {
	r := o.runnerByAgent(agentID)
	if o.perms == nil {
		// No gating configured: deny rather than hang the worker.
		if r != nil {
			r.RespondPermission(agentID, ev.RequestID, false, "permission gating unavailable")
		}
		return
	}

	decisions, err := o.perms.Create(o.baseCtx, permission.Request{
		ID:        ev.RequestID,
		AgentID:   agentID,
		Tool:      ev.Tool,
		ToolInput: ev.ToolInput,
	})
	if err != nil {
		o.logger.Warn("permission request rejected",
			"agent_id", agentID, "request_id", ev.RequestID, "error", err)
		if r != nil {
			r.RespondPermission(agentID, ev.RequestID, false, err.Error())
		}
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		d, ok := <-decisions
		if !ok {
			return
		}
		if r := o.runnerByAgent(agentID); r != nil {
			r.RespondPermission(agentID, ev.RequestID, d.Approved, d.Reason)
		}
	}()
}

// handleExit settles the agent's status when its process ends. A clean exit
// while still marked working means the turn finished without an explicit
// step-complete; treat it as done.
func (o *Orchestrator) handleExit(agentID string, silent bool, ev runner.Event) {
	o.cancelWatchdog(agentID)
	if silent {
		return
	}

	updated, err := o.roster.Update(agentID, func(a *agent.Agent) {
		if ev.Err != "" {
			a.Status = agent.StatusError
			a.CurrentTask = ""
			a.CurrentTool = ""
			return
		}
		if a.Status == agent.StatusWorking || a.Status == agent.StatusWaiting {
			a.Status = agent.StatusIdle
			a.CurrentTask = ""
			a.CurrentTool = ""
		}
	})
	if err != nil {
		return
	}
	if ev.Err != "" {
		o.notice(agentID, "Session ended with error: "+ev.Err)
	}
	o.publishAgent(updated)
}

func (o *Orchestrator) runnerByAgent(agentID string) runner.Runner {
	a, ok := o.roster.Get(agentID)
	if !ok {
		return nil
	}
	return o.runnerFor(a.Provider)
}
