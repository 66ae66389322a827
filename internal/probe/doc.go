// Package probe answers two independent questions about a worker that the
// orchestrator has lost its process handle for: was its session touched
// recently, and is some provider process still alive under its working
// directory. Either signal can be stale on its own, so reconciliation
// consults both.
package probe
