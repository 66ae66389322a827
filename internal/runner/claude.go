// ABOUTME: ClaudeRunner spawns and supervises claude CLI worker processes.
// ABOUTME: Parses the CLI's stream-json NDJSON output into the typed Event stream.

package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

const (
	// eventBufferSize is the per-session event channel buffer.
	eventBufferSize = 64
	// maxLineBytes bounds one NDJSON line from the CLI.
	maxLineBytes = 4 * 1024 * 1024
)

// session tracks one live worker process.
type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc

	mu     sync.Mutex // guards stdin writes
	closed bool
}

// ClaudeRunner runs worker sessions on the claude CLI. One process per
// agent; mid-session input is supported through stream-json stdin framing.
type ClaudeRunner struct {
	binary string
	model  string
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewClaudeRunner creates a runner for the given CLI binary and default model.
func NewClaudeRunner(binary, model string, logger *slog.Logger) *ClaudeRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if binary == "" {
		binary = "claude"
	}
	return &ClaudeRunner{
		binary:   binary,
		model:    model,
		logger:   logger.With("component", "claude-runner"),
		sessions: make(map[string]*session),
	}
}

// SupportsMidSessionInput reports that claude accepts stdin messages.
func (r *ClaudeRunner) SupportsMidSessionInput() bool { return true }

// Run starts or resumes a worker session and returns its event stream.
func (r *ClaudeRunner) Run(ctx context.Context, spec RunSpec) (<-chan Event, error) {
	r.mu.Lock()
	if _, exists := r.sessions[spec.AgentID]; exists {
		r.mu.Unlock()
		return nil, ErrSessionExists
	}
	r.mu.Unlock()

	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	model := spec.Model
	if model == "" {
		model = r.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if spec.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", spec.SystemPrompt)
	}
	if spec.ResumeSessionID != "" {
		args = append(args, "--resume", spec.ResumeSessionID)
	}
	args = append(args, "-p", spec.Prompt)

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, r.binary, args...) //nolint:gosec // binary comes from config
	cmd.Dir = spec.WorkingDir
	cmd.Env = os.Environ()
	// Own process group so Stop can kill the whole worker tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s: %w", r.binary, err)
	}

	sess := &session{cmd: cmd, stdin: stdin, cancel: cancel}
	r.mu.Lock()
	r.sessions[spec.AgentID] = sess
	r.mu.Unlock()

	r.logger.Info("worker session started",
		"agent_id", spec.AgentID,
		"pid", cmd.Process.Pid,
		"resume", spec.ResumeSessionID != "",
	)

	events := make(chan Event, eventBufferSize)
	go r.consume(ctx, spec.AgentID, sess, stdout, events)
	return events, nil
}

// consume reads NDJSON lines until the process exits, translating each
// into typed events, then reaps the process and closes the stream.
func (r *ClaudeRunner) consume(ctx context.Context, agentID string, sess *session, stdout io.Reader, events chan<- Event) {
	defer close(events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, ev := range parseLine(agentID, line) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
	}

	err := sess.cmd.Wait()
	r.release(agentID, sess)

	exit := Event{AgentID: agentID, Type: EventExit}
	if err != nil && ctx.Err() == nil {
		exit.Err = err.Error()
	}
	select {
	case events <- exit:
	default:
	}
}

// release drops the session handle if it is still the registered one.
func (r *ClaudeRunner) release(agentID string, sess *session) {
	r.mu.Lock()
	if cur, ok := r.sessions[agentID]; ok && cur == sess {
		delete(r.sessions, agentID)
	}
	r.mu.Unlock()
	sess.cancel()
}

// SendMessage writes a user message line to the worker's stdin. Returns
// false when no live process exists or the write fails.
func (r *ClaudeRunner) SendMessage(agentID, text string) bool {
	payload := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": []map[string]any{{"type": "text", "text": text}},
		},
	}
	return r.writeLine(agentID, payload)
}

// RespondPermission answers a control_request on the worker's stdin.
func (r *ClaudeRunner) RespondPermission(agentID, requestID string, approved bool, reason string) bool {
	behavior := "deny"
	if approved {
		behavior = "allow"
	}
	resp := map[string]any{"behavior": behavior}
	if reason != "" {
		resp["message"] = reason
	}
	payload := map[string]any{
		"type":       "control_response",
		"request_id": requestID,
		"response":   resp,
	}
	return r.writeLine(agentID, payload)
}

// writeLine marshals payload and writes it as one NDJSON line under the
// session's stdin lock.
func (r *ClaudeRunner) writeLine(agentID string, payload any) bool {
	r.mu.RLock()
	sess, ok := r.sessions[agentID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return false
	}
	if _, err := sess.stdin.Write(append(data, '\n')); err != nil {
		r.logger.Warn("stdin write failed", "agent_id", agentID, "error", err)
		return false
	}
	return true
}

// IsRunning reports whether a live process handle exists for the agent.
func (r *ClaudeRunner) IsRunning(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[agentID]
	return ok
}

// Stop terminates the agent's process group and releases the handle.
// A no-op when no process is tracked.
func (r *ClaudeRunner) Stop(agentID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[agentID]
	if ok {
		delete(r.sessions, agentID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	sess.closed = true
	sess.stdin.Close()
	sess.mu.Unlock()

	// Negative pid signals the whole process group.
	if sess.cmd.Process != nil {
		_ = syscall.Kill(-sess.cmd.Process.Pid, syscall.SIGTERM)
	}
	sess.cancel()

	r.logger.Info("worker session stopped", "agent_id", agentID)
	return nil
}

// StopAll terminates every tracked session. Used on daemon shutdown.
func (r *ClaudeRunner) StopAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.Stop(id)
	}
}
