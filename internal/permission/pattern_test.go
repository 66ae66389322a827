// ABOUTME: Tests for remembered-pattern derivation and matching heuristics.
// ABOUTME: Covers file tools, shell tools, and the bare-tool fallback.

package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roost/internal/store"
)

func TestDerivePattern_FileTool(t *testing.T) {
	p := DerivePattern("Write", json.RawMessage(`{"file_path":"/work/proj/src/main.go"}`))

	require.NotNil(t, p)
	assert.Equal(t, "Write", p.Tool)
	assert.Equal(t, "/work/proj/src/", p.Pattern)
}

func TestDerivePattern_FileTool_NoPath(t *testing.T) {
	assert.Nil(t, DerivePattern("Edit", json.RawMessage(`{}`)))
}

func TestDerivePattern_Bash(t *testing.T) {
	p := DerivePattern("Bash", json.RawMessage(`{"command":"git commit -m msg"}`))

	require.NotNil(t, p)
	assert.Equal(t, "git", p.Pattern)
}

func TestDerivePattern_Bash_EmptyCommand(t *testing.T) {
	assert.Nil(t, DerivePattern("Bash", json.RawMessage(`{"command":"   "}`)))
}

func TestDerivePattern_OtherToolUsesBareName(t *testing.T) {
	p := DerivePattern("WebSearch", json.RawMessage(`{"query":"golang"}`))

	require.NotNil(t, p)
	assert.Equal(t, "WebSearch", p.Pattern)
}

func TestMatches_FileToolPrefix(t *testing.T) {
	p := &store.RememberedPattern{Tool: "Write", Pattern: "/work/proj/"}

	assert.True(t, Matches(p, "Write", json.RawMessage(`{"file_path":"/work/proj/a/b.go"}`)))
	assert.False(t, Matches(p, "Write", json.RawMessage(`{"file_path":"/other/b.go"}`)))
	assert.False(t, Matches(p, "Edit", json.RawMessage(`{"file_path":"/work/proj/a/b.go"}`)),
		"tool must match exactly")
}

func TestMatches_BashFirstToken(t *testing.T) {
	p := &store.RememberedPattern{Tool: "Bash", Pattern: "git"}

	assert.True(t, Matches(p, "Bash", json.RawMessage(`{"command":"git push"}`)))
	assert.False(t, Matches(p, "Bash", json.RawMessage(`{"command":"rm -rf /"}`)))
	assert.False(t, Matches(p, "Bash", json.RawMessage(`{"command":""}`)))
}

func TestMatches_BareTool(t *testing.T) {
	p := &store.RememberedPattern{Tool: "WebSearch", Pattern: "WebSearch"}

	assert.True(t, Matches(p, "WebSearch", nil))
	assert.False(t, Matches(p, "WebFetch", nil))
}
