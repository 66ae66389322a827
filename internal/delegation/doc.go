// ABOUTME: Package delegation routes a boss agent's commands to subordinates.
// ABOUTME: External judgment with a deterministic fallback, decisions persisted as history.

// Package delegation decides which subordinate should handle a command
// issued to a boss agent.
//
// The selection path asks an external judgment call to rank the boss's
// subordinates against the command, using a fresh snapshot of their
// status, current and recent work, and context usage. The judgment call
// is best-effort: if it errors, times out, or returns output no JSON
// object can be extracted from, the service falls back to a fixed rule
// (first idle subordinate, else first in assignment order) with low
// confidence. Delegation therefore never fails once its preconditions
// hold; the only caller-visible errors are "not a boss" and "no
// subordinates".
//
// Every decision is written to the store twice: once as pending before
// the judgment call so observers can show routing in progress, and once
// as sent with the selection filled in.
package delegation
