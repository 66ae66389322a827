// Package broadcast fans typed orchestrator events out to connected
// observers. Serialization is defensive: payloads that encoding/json cannot
// represent degrade to string forms, and an event that still cannot produce
// valid JSON is dropped with a logged error so one bad payload never
// corrupts every observer's stream. Output lines pass a bounded per-agent
// dedup cache before delivery.
package broadcast
