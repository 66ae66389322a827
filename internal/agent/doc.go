// Package agent defines the Agent entity and the Roster that owns it.
//
// # Overview
//
// An Agent is one supervised worker backed by an external coding-assistant
// CLI process. The Roster is the single shared table of agents: runtime
// command execution mutates task and status fields, status reconciliation
// rewrites status, permission gating snapshots and restores status, and
// delegation maintains the boss/subordinate hierarchy. All of it goes
// through Roster accessors, never through private copies.
//
// # Hierarchy Invariants
//
// The roster enforces two invariants on every assignment operation:
//
//   - a boss-class agent never appears in another agent's subordinate list
//   - BossID on a subordinate and membership in a boss's SubordinateIDs are
//     updated together in one critical section, never independently
//
// AssignSubordinates is idempotent and corrective: unknown ids and
// boss-class ids are dropped, and an agent owned by a different boss is
// re-parented (removed from the previous boss's list first).
//
// # Thread Safety
//
// Roster is safe for concurrent use. Accessors return deep copies, so a
// snapshot handed to an observer never races with later mutation.
package agent
