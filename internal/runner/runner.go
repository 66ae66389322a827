// ABOUTME: Runner contract for one external worker process per agent.
// ABOUTME: Defines RunSpec, the typed Event stream, and the provider interface.

package runner

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrRunnerNotInitialized indicates no runner is registered for a provider.
// Fatal to the dispatch that hit it; never retried.
var ErrRunnerNotInitialized = errors.New("runner not initialized for provider")

// ErrSessionExists indicates the agent already has a live process.
var ErrSessionExists = errors.New("agent session already running")

// RunSpec describes one start-or-resume of a worker session.
type RunSpec struct {
	AgentID      string
	WorkingDir   string
	Prompt       string
	SystemPrompt string
	// ResumeSessionID resumes an existing conversation when non-empty.
	ResumeSessionID string
	Model           string
}

// EventType tags entries on a session's event stream.
type EventType string

const (
	// EventInit carries the resumable session id once the worker
	// establishes one.
	EventInit         EventType = "init"
	EventToolStart    EventType = "tool_start"
	EventToolResult   EventType = "tool_result"
	EventOutput       EventType = "output"
	EventError        EventType = "error"
	EventStepComplete EventType = "step_complete"
	EventContextStats EventType = "context_stats"
	// EventPermissionRequest is emitted when the worker asks for
	// out-of-band approval of a gated tool call.
	EventPermissionRequest EventType = "permission_request"
	// EventExit is the final event on every stream; the channel is closed
	// after it.
	EventExit EventType = "exit"
)

// Event is one entry in a worker session's event stream.
type Event struct {
	AgentID string
	Type    EventType

	// EventInit
	SessionID string

	// EventToolStart / EventToolResult / EventPermissionRequest
	Tool       string
	ToolInput  json.RawMessage
	ToolOutput string
	IsError    bool
	RequestID  string

	// EventOutput; Final distinguishes the end-of-turn text from
	// streaming fragments.
	Line  string
	Final bool

	// EventError / EventExit
	Err string

	// EventContextStats
	ContextUsed  int
	ContextLimit int
}

// Runner wraps one external worker process per agent for a provider
// family. The runner alone owns the OS-level process handle; the rest of
// the system must never assume a process is dead just because the handle
// is missing.
type Runner interface {
	// Run starts or resumes a session and returns its event stream. The
	// channel is closed after EventExit.
	Run(ctx context.Context, spec RunSpec) (<-chan Event, error)

	// SendMessage writes a user message to an already-running process's
	// input channel, returning false if the channel is unavailable.
	SendMessage(agentID, text string) bool

	// RespondPermission answers a pending permission request on the
	// worker's control channel. Returns false if the process is gone.
	RespondPermission(agentID, requestID string, approved bool, reason string) bool

	// IsRunning reports whether the runner holds a live process handle.
	IsRunning(agentID string) bool

	// Stop terminates the process and releases its handle.
	Stop(agentID string) error

	// SupportsMidSessionInput reports whether this provider accepts
	// messages on stdin mid-session.
	SupportsMidSessionInput() bool
}
