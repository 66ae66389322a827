// Package runner wraps one external coding-assistant CLI process per agent.
//
// The Runner interface is the only component allowed to hold OS-level
// process handles. Everything above it works from the typed Event stream:
// session init (with the resumable session id), tool start/result, raw
// output lines (streaming vs final), permission requests, context stats,
// and a terminal exit event.
//
// ClaudeRunner is the claude CLI implementation. It speaks the CLI's
// stream-json framing in both directions: NDJSON events on stdout, user
// messages and control responses on stdin. Each worker runs in its own
// process group so a stop kills the whole tree.
package runner
