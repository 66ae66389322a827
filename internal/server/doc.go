// ABOUTME: Package server is the HTTP and WebSocket surface of the daemon.
// ABOUTME: Synchronous JSON endpoints plus a live observer event stream.

package server
