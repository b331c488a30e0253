package session

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event is one line of the agent CLI's stream-json output.
type Event struct {
	Type         string        `json:"type"`
	Subtype      string        `json:"subtype,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	Message      *EventMessage `json:"message,omitempty"`
	Result       string        `json:"result,omitempty"`
	IsError      bool          `json:"is_error,omitempty"`
	NumTurns     int           `json:"num_turns,omitempty"`
	DurationMS   int64         `json:"duration_ms,omitempty"`
	TotalCostUSD float64       `json:"total_cost_usd,omitempty"`
}

// EventMessage is the message payload of assistant and user events.
type EventMessage struct {
	Role    string  `json:"role"`
	Model   string  `json:"model,omitempty"`
	Content Content `json:"content"`
}

// Content is a list of content blocks. A bare string decodes as a single
// text block.
type Content []Block

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{{Type: BlockText, Text: s}}
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*c = blocks
	return nil
}

const (
	EventSystem    = "system"
	EventAssistant = "assistant"
	EventUser      = "user"
	EventResult    = "result"

	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"

	SubtypeSuccess = "success"
)

// Block is one content block inside a message.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ResultText flattens a tool_result block's content to plain text.
func (b Block) ResultText() string {
	raw := bytes.TrimSpace(b.Content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []Block
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == BlockText {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(p.Text)
			}
		}
		return sb.String()
	}
	return string(raw)
}

// ParseEvent decodes one stream-json line.
func ParseEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, &DecodeError{Line: string(line), Err: err}
	}
	return ev, nil
}
