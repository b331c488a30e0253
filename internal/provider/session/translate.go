package session

import (
	"encoding/json"

	"github.com/agentoven/orchestrator/pkg/models"
)

// Translate converts one CLI event into canonical messages sent by agent.
// System events and unknown event or block types yield nothing.
func Translate(agent string, ev Event) []models.Message {
	switch ev.Type {
	case EventAssistant:
		return translateAssistant(agent, ev)
	case EventUser:
		return translateToolResults(agent, ev)
	case EventResult:
		return []models.Message{translateResult(agent, ev)}
	}
	return nil
}

func newMessage(agent, content string, typ models.MessageType, meta map[string]any) models.Message {
	return models.NewMessage(agent, []string{models.RecipientAll}, content, typ, meta)
}

func translateAssistant(agent string, ev Event) []models.Message {
	if ev.Message == nil {
		return nil
	}
	var out []models.Message
	for _, b := range ev.Message.Content {
		switch b.Type {
		case BlockText:
			out = append(out, newMessage(agent, b.Text, models.MessageTypeChat, map[string]any{
				"sdk_type": "assistant_text",
			}))
		case BlockToolUse:
			out = append(out, newMessage(agent, "Using tool: "+b.Name, models.MessageTypeSystem, map[string]any{
				"sdk_type":    "tool_use",
				"tool_name":   b.Name,
				"tool_use_id": b.ID,
				"tool_input":  decodeInput(b.Input),
			}))
		}
	}
	return out
}

func translateToolResults(agent string, ev Event) []models.Message {
	if ev.Message == nil {
		return nil
	}
	var out []models.Message
	for _, b := range ev.Message.Content {
		if b.Type != BlockToolResult {
			continue
		}
		out = append(out, newMessage(agent, b.ResultText(), models.MessageTypeSystem, map[string]any{
			"sdk_type":    "tool_result",
			"tool_use_id": b.ToolUseID,
			"is_error":    b.IsError,
		}))
	}
	return out
}

func translateResult(agent string, ev Event) models.Message {
	typ := models.MessageTypeSystem
	if ev.Subtype == SubtypeSuccess {
		typ = models.MessageTypeChat
	}
	meta := map[string]any{
		"sdk_type": "result",
		"subtype":  ev.Subtype,
	}
	if ev.SessionID != "" {
		meta["session_id"] = ev.SessionID
	}
	if ev.NumTurns != 0 {
		meta["num_turns"] = ev.NumTurns
	}
	if ev.TotalCostUSD != 0 {
		meta["total_cost_usd"] = ev.TotalCostUSD
	}
	return newMessage(agent, ev.Result, typ, meta)
}

func decodeInput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
