// ABOUTME: Translates claude CLI stream-json lines into typed runner events.
// ABOUTME: Unknown line shapes degrade to plain output rather than being dropped.

package runner

import (
	"encoding/json"
)

// wireLine is the superset of fields we read from one stream-json line.
type wireLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Message   *wireMessage    `json:"message"`
	Result    string          `json:"result"`
	IsError   bool            `json:"is_error"`
	Usage     *wireUsage      `json:"usage"`
	RequestID string          `json:"request_id"`
	Request   *wireCtlRequest `json:"request"`
}

type wireMessage struct {
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type wireUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
	ContextLimit        int `json:"context_limit"`
}

type wireCtlRequest struct {
	Subtype  string          `json:"subtype"`
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input"`
}

// parseLine converts one NDJSON line into zero or more events. A line that
// is not valid JSON is surfaced as a streaming output line so nothing the
// worker prints is lost.
func parseLine(agentID, line string) []Event {
	var w wireLine
	if err := json.Unmarshal([]byte(line), &w); err != nil || w.Type == "" {
		return []Event{{AgentID: agentID, Type: EventOutput, Line: line}}
	}

	switch w.Type {
	case "system":
		if w.Subtype == "init" && w.SessionID != "" {
			return []Event{{AgentID: agentID, Type: EventInit, SessionID: w.SessionID}}
		}
		return nil

	case "assistant":
		return parseAssistant(agentID, w.Message)

	case "user":
		return parseToolResults(agentID, w.Message)

	case "result":
		events := []Event{}
		if w.Result != "" {
			events = append(events, Event{
				AgentID: agentID, Type: EventOutput, Line: w.Result, Final: true,
			})
		}
		if w.Usage != nil {
			events = append(events, contextStats(agentID, w.Usage))
		}
		if w.IsError {
			events = append(events, Event{AgentID: agentID, Type: EventError, Err: w.Result})
		} else {
			events = append(events, Event{AgentID: agentID, Type: EventStepComplete})
		}
		return events

	case "control_request":
		if w.Request != nil && w.Request.Subtype == "can_use_tool" {
			return []Event{{
				AgentID:   agentID,
				Type:      EventPermissionRequest,
				RequestID: w.RequestID,
				Tool:      w.Request.ToolName,
				ToolInput: w.Request.Input,
			}}
		}
		return nil

	default:
		return nil
	}
}

func parseAssistant(agentID string, msg *wireMessage) []Event {
	if msg == nil {
		return nil
	}
	var events []Event
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				events = append(events, Event{AgentID: agentID, Type: EventOutput, Line: block.Text})
			}
		case "tool_use":
			events = append(events, Event{
				AgentID:   agentID,
				Type:      EventToolStart,
				Tool:      block.Name,
				ToolInput: block.Input,
			})
		}
	}
	return events
}

func parseToolResults(agentID string, msg *wireMessage) []Event {
	if msg == nil {
		return nil
	}
	var events []Event
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			continue
		}
		events = append(events, Event{
			AgentID:    agentID,
			Type:       EventToolResult,
			ToolOutput: flattenToolContent(block.Content),
			IsError:    block.IsError,
		})
	}
	return events
}

// flattenToolContent extracts readable text from a tool_result content
// field, which the CLI emits either as a string or as a block list.
func flattenToolContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []wireBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}

// contextStats maps a usage report to an EventContextStats. The limit
// falls back to a conservative default when the CLI does not report one.
func contextStats(agentID string, u *wireUsage) Event {
	used := u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
	limit := u.ContextLimit
	if limit == 0 {
		limit = 200000
	}
	return Event{
		AgentID:      agentID,
		Type:         EventContextStats,
		ContextUsed:  used,
		ContextLimit: limit,
	}
}
