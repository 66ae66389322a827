// ABOUTME: Session-activity probe backed by fsnotify over the provider's transcript dir.
// ABOUTME: Falls back to transcript mtime when no watch event has been observed.

package probe

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Activity is the tri-state answer of the session-activity probe.
type Activity int

const (
	// ActivityUnknown means the probe could not locate a transcript.
	ActivityUnknown Activity = iota
	ActivityActive
	ActivityInactive
)

// ActivityProbe reports whether a resumable session was touched within a
// recent window. It watches the provider's session transcript directory
// with fsnotify and records last-write times; when a session has produced
// no watch event (daemon restart, watch failure), it falls back to the
// transcript file's mtime.
type ActivityProbe struct {
	sessionDir string
	logger     *slog.Logger

	mu        sync.RWMutex
	lastWrite map[string]time.Time // session id -> last observed write
	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewActivityProbe creates a probe rooted at sessionDir. An empty
// sessionDir resolves to the provider default under the home directory.
// Watch setup failure is not fatal; the probe degrades to mtime checks.
func NewActivityProbe(sessionDir string, logger *slog.Logger) *ActivityProbe {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			sessionDir = filepath.Join(home, ".claude", "projects")
		}
	}

	p := &ActivityProbe{
		sessionDir: sessionDir,
		logger:     logger.With("component", "activity-probe"),
		lastWrite:  make(map[string]time.Time),
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("fsnotify unavailable, using mtime only", "error", err)
		return p
	}
	p.watcher = watcher

	if err := p.addWatches(); err != nil {
		p.logger.Warn("session dir not watchable, using mtime only",
			"dir", sessionDir, "error", err)
	}
	go p.watchLoop()
	return p
}

// addWatches watches the session root and its per-project subdirectories.
func (p *ActivityProbe) addWatches() error {
	if err := p.watcher.Add(p.sessionDir); err != nil {
		return err
	}
	entries, err := os.ReadDir(p.sessionDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := p.watcher.Add(filepath.Join(p.sessionDir, e.Name())); err != nil {
				p.logger.Debug("watch add failed", "dir", e.Name(), "error", err)
			}
		}
	}
	return nil
}

// watchLoop records write times keyed by session id (transcript basename).
func (p *ActivityProbe) watchLoop() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = p.watcher.Add(event.Name)
					continue
				}
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, ".jsonl") {
				continue
			}
			sessionID := strings.TrimSuffix(base, ".jsonl")
			p.mu.Lock()
			p.lastWrite[sessionID] = time.Now()
			p.mu.Unlock()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Debug("watch error", "error", err)
		}
	}
}

// IsActive reports whether the session was touched within window. The cwd
// locates the per-project transcript directory for the mtime fallback.
func (p *ActivityProbe) IsActive(cwd, sessionID string, window time.Duration) Activity {
	if sessionID == "" {
		return ActivityUnknown
	}

	p.mu.RLock()
	last, seen := p.lastWrite[sessionID]
	p.mu.RUnlock()
	if seen {
		if time.Since(last) <= window {
			return ActivityActive
		}
		return ActivityInactive
	}

	path := p.transcriptPath(cwd, sessionID)
	info, err := os.Stat(path)
	if err != nil {
		return ActivityUnknown
	}
	if time.Since(info.ModTime()) <= window {
		return ActivityActive
	}
	return ActivityInactive
}

// transcriptPath maps (cwd, session id) to the provider's transcript file.
// The provider names project directories by replacing path separators and
// dots in the absolute working directory with dashes.
func (p *ActivityProbe) transcriptPath(cwd, sessionID string) string {
	return filepath.Join(p.sessionDir, mungeProjectDir(cwd), sessionID+".jsonl")
}

// mungeProjectDir converts an absolute path to the provider's flattened
// project directory name.
func mungeProjectDir(cwd string) string {
	munged := strings.ReplaceAll(cwd, string(filepath.Separator), "-")
	munged = strings.ReplaceAll(munged, ".", "-")
	munged = strings.ReplaceAll(munged, "_", "-")
	return munged
}

// Close stops the watch loop. Safe to call multiple times.
func (p *ActivityProbe) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.watcher != nil {
			p.watcher.Close()
		}
	})
}
