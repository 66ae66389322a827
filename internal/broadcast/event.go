// ABOUTME: Typed event envelope fanned out to every connected observer.
// ABOUTME: Each event is self-contained; no event requires a prior one to interpret.

package broadcast

import (
	"time"
)

// EventType categorizes observer events.
type EventType string

const (
	EventAgentsSnapshot     EventType = "agents_snapshot"
	EventAgentUpdated       EventType = "agent_updated"
	EventAgentRemoved       EventType = "agent_removed"
	EventOutput             EventType = "output"
	EventSystemNotice       EventType = "system_notice"
	EventPermissionRequest  EventType = "permission_request"
	EventPermissionResolved EventType = "permission_resolved"
	EventDelegationDecision EventType = "delegation_decision"
)

// Event is one observer-visible occurrence. Payload holds the event-specific
// body and is serialized defensively before delivery.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AgentID   string    `json:"agentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// OutputPayload is the body of an EventOutput.
type OutputPayload struct {
	Line      string `json:"line"`
	Streaming bool   `json:"streaming"`
}

// NoticePayload is the body of an EventSystemNotice.
type NoticePayload struct {
	Message string `json:"message"`
}
