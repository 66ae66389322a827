// ABOUTME: Defensive parsing of the judgment call's structured answer.
// ABOUTME: Every failure collapses to the Malformed arm; callers must take the fallback.

package delegation

import (
	"encoding/json"
	"strings"
)

// Answer is the structurally constrained response demanded from the
// judgment call.
type Answer struct {
	SelectedAgent string   `json:"selectedAgent"`
	Reasoning     string   `json:"reasoning"`
	Alternatives  []string `json:"alternatives"`
	Confidence    string   `json:"confidence"`
}

// ParseOutcome is a tagged result: exactly one of Parsed or Malformed is
// set. A Malformed outcome obliges the caller to use the deterministic
// fallback instead of erroring.
type ParseOutcome struct {
	Parsed    *Answer
	Malformed string
}

// parseJudgment extracts and validates the judgment answer from free-form
// CLI output. It strips code-fence wrapping, pulls the first JSON object
// containing the required keys out of surrounding prose, and checks the
// selected identifier against the subordinate snapshot by id or exact
// name. The resolved subordinate id replaces whatever form the answer used.
func parseJudgment(raw string, subs []SubordinateContext) ParseOutcome {
	text := stripFences(raw)

	obj := firstJSONObject(text)
	if obj == "" {
		return ParseOutcome{Malformed: "no JSON object in response"}
	}

	var ans Answer
	if err := json.Unmarshal([]byte(obj), &ans); err != nil {
		return ParseOutcome{Malformed: "invalid JSON: " + err.Error()}
	}
	if ans.SelectedAgent == "" {
		return ParseOutcome{Malformed: "missing selectedAgent"}
	}

	resolved := ""
	for _, sub := range subs {
		if sub.ID == ans.SelectedAgent || sub.Name == ans.SelectedAgent {
			resolved = sub.ID
			break
		}
	}
	if resolved == "" {
		return ParseOutcome{Malformed: "selected agent " + ans.SelectedAgent + " is not a subordinate"}
	}
	ans.SelectedAgent = resolved

	switch ans.Confidence {
	case "high", "medium", "low":
	default:
		ans.Confidence = "medium"
	}
	return ParseOutcome{Parsed: &ans}
}

// stripFences removes an optional markdown code fence wrapper.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag on the opening fence.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// firstJSONObject scans for the first balanced {...} containing the
// required selectedAgent key, tolerating prose around it. String literals
// are skipped so braces inside them don't unbalance the scan.
func firstJSONObject(s string) string {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if strings.Contains(candidate, `"selectedAgent"`) && json.Valid([]byte(candidate)) {
						return candidate
					}
					// Keep scanning past this object.
					start = i
					i = len(s)
				}
			}
		}
		if depth != 0 {
			// Unbalanced from this start; try the next brace.
			continue
		}
	}
	return ""
}
