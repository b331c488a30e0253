package openai

import (
	"strings"

	"github.com/agentoven/orchestrator/pkg/models"
	gopenai "github.com/sashabaranov/go-openai"
)

// translate builds the messages for one completed turn: the text, when
// it is not blank, followed by one system message per tool call.
func translate(agent, model, text string, calls []gopenai.ToolCall) []models.Message {
	var out []models.Message
	recipients := []string{models.RecipientAll}

	if strings.TrimSpace(text) != "" {
		out = append(out, models.NewMessage(agent, recipients, text, models.MessageTypeChat, map[string]any{
			"provider": Kind,
			"model":    model,
		}))
	}

	for _, tc := range calls {
		out = append(out, models.NewMessage(agent, recipients, "Using tool: "+tc.Function.Name, models.MessageTypeSystem, map[string]any{
			"provider":       Kind,
			"type":           "tool_call",
			"tool_call_id":   tc.ID,
			"tool_name":      tc.Function.Name,
			"tool_arguments": tc.Function.Arguments,
		}))
	}
	return out
}
