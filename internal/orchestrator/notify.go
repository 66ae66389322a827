// ABOUTME: HubNotifier bridges permission and delegation lifecycle events onto the hub.
// ABOUTME: Keeps those services free of a broadcast dependency.

package orchestrator

import (
	"github.com/2389/roost/internal/broadcast"
	"github.com/2389/roost/internal/permission"
	"github.com/2389/roost/internal/store"
)

// HubNotifier publishes permission and delegation lifecycle events to the
// broadcast hub. It satisfies permission.Notifier and delegation.Notifier.
type HubNotifier struct {
	Hub *broadcast.Hub
}

// PermissionRequested broadcasts a newly pending request.
func (n *HubNotifier) PermissionRequested(req permission.Request) {
	n.Hub.Publish(broadcast.Event{
		Type:    broadcast.EventPermissionRequest,
		AgentID: req.AgentID,
		Payload: req,
	})
}

// PermissionResolved broadcasts a request's final decision.
func (n *HubNotifier) PermissionResolved(req permission.Request, d permission.Decision) {
	n.Hub.Publish(broadcast.Event{
		Type:    broadcast.EventPermissionResolved,
		AgentID: req.AgentID,
		Payload: struct {
			Request  permission.Request  `json:"request"`
			Decision permission.Decision `json:"decision"`
		}{req, d},
	})
}

// DelegationDecision broadcasts a routing decision, pending or sent.
func (n *HubNotifier) DelegationDecision(d *store.DelegationDecision) {
	n.Hub.Publish(broadcast.Event{
		Type:    broadcast.EventDelegationDecision,
		AgentID: d.BossID,
		Payload: d,
	})
}
