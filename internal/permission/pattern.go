// ABOUTME: Heuristic derivation and matching of remembered auto-approval patterns.
// ABOUTME: Directory prefix for file tools, command token for shell tools, bare tool otherwise.

package permission

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/roost/internal/store"
)

// fileTools write to paths; their pattern is the containing directory.
var fileTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// toolInput is the subset of gated-tool parameters the heuristics read.
type toolInput struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
}

// DerivePattern builds a RememberedPattern from an approved request:
// the directory prefix for file-writing tools, the first command token for
// shell tools, the bare tool name otherwise. Returns nil when the input
// carries nothing to generalize from.
func DerivePattern(tool string, input json.RawMessage) *store.RememberedPattern {
	var in toolInput
	_ = json.Unmarshal(input, &in)

	switch {
	case fileTools[tool]:
		if in.FilePath == "" {
			return nil
		}
		dir := filepath.Dir(in.FilePath)
		return &store.RememberedPattern{
			Tool:        tool,
			Pattern:     dir + string(filepath.Separator),
			Description: tool + " files under " + dir,
			CreatedAt:   time.Now(),
		}
	case tool == "Bash":
		fields := strings.Fields(in.Command)
		if len(fields) == 0 {
			return nil
		}
		return &store.RememberedPattern{
			Tool:        tool,
			Pattern:     fields[0],
			Description: "shell commands starting with " + fields[0],
			CreatedAt:   time.Now(),
		}
	default:
		return &store.RememberedPattern{
			Tool:        tool,
			Pattern:     tool,
			Description: "any " + tool + " invocation",
			CreatedAt:   time.Now(),
		}
	}
}

// Matches reports whether a remembered pattern covers a request's tool and
// input, using the same heuristics as derivation.
func Matches(p *store.RememberedPattern, tool string, input json.RawMessage) bool {
	if p.Tool != tool {
		return false
	}

	var in toolInput
	_ = json.Unmarshal(input, &in)

	switch {
	case fileTools[tool]:
		return in.FilePath != "" && strings.HasPrefix(in.FilePath, p.Pattern)
	case tool == "Bash":
		fields := strings.Fields(in.Command)
		return len(fields) > 0 && fields[0] == p.Pattern
	default:
		return p.Pattern == tool
	}
}
