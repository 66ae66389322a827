// Package dedupe suppresses duplicate agent output lines using a bounded
// per-agent cache of recent content hashes.
package dedupe
