// Package permission gates risky worker tool calls behind out-of-band
// human approval.
//
// # State Machine
//
// A request moves pending -> {approved, denied, timed-out, canceled} and is
// terminal thereafter; each request transitions exactly once. The owning
// agent's status is snapshotted at request time, forced to
// waiting_permission, and restored exactly once at resolution, whichever
// path wins: response, timeout, or cancel-on-agent-removal.
//
// # Remembered Patterns
//
// An approval with remember set derives a persisted auto-approval rule:
// the directory prefix for file-writing tools, the first command token for
// Bash, the bare tool name otherwise. Future requests matching a rule are
// approved without entering the pending set.
package permission
