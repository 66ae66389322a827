// ABOUTME: Package orchestrator is the runtime core supervising agent worker processes.
// ABOUTME: Command execution, watchdog retry, and status reconciliation live here.

// Package orchestrator keeps the in-memory agent model consistent with the
// real processes behind it.
//
// Command execution resolves each inbound command to the cheapest viable
// path: writing to a live process's stdin, resuming a dormant session, or
// spawning fresh. A mid-session send arms a watchdog that respawns the
// session once if no activity follows. Reconciliation runs on a timer and
// on observer connect, settling disagreements between declared status,
// session transcript activity, and actual OS processes. All mutations to
// agent state flow through the orchestrator and are broadcast as events.
package orchestrator
