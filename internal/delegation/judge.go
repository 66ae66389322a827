// ABOUTME: External judgment call for delegation routing via the claude CLI.
// ABOUTME: One-shot prompt in, free-form text out, bounded by the caller's context.

package delegation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// JudgmentCaller invokes an external best-effort judgment. Implementations
// must honor ctx cancellation; callers apply a hard timeout.
type JudgmentCaller interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// ClaudeJudge shells out to the claude CLI in print mode.
type ClaudeJudge struct {
	Binary string
	Model  string
}

// Judge runs one claude -p invocation and returns its stdout.
// Stdin is an empty reader so the CLI never blocks on a TTY, and
// CLAUDECODE* env vars are stripped so a nested invocation behaves
// normally.
func (j *ClaudeJudge) Judge(ctx context.Context, prompt string) (string, error) {
	binary := j.Binary
	if binary == "" {
		binary = "claude"
	}
	args := []string{"-p", prompt}
	if j.Model != "" {
		args = append(args, "--model", j.Model)
	}

	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec // binary comes from config
	cmd.Stdin = strings.NewReader("")
	env := os.Environ()
	filtered := env[:0]
	for _, e := range env {
		if !strings.HasPrefix(e, "CLAUDECODE") {
			filtered = append(filtered, e)
		}
	}
	cmd.Env = filtered

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("judgment call: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
