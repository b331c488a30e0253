package models

import (
	"time"

	"github.com/google/uuid"
)

// ── Message ──────────────────────────────────────────────────

type MessageType string

const (
	MessageTypeChat    MessageType = "chat"
	MessageTypeSystem  MessageType = "system"
	MessageTypeCommand MessageType = "command"
)

// SenderHuman is the sender recorded for messages submitted through the engine.
const SenderHuman = "human"

// RecipientAll addresses every participant of a conversation.
const RecipientAll = "all"

// Message is the canonical unit exchanged between clients and agents.
// Values are treated as immutable once built by NewMessage.
type Message struct {
	ID         string         `json:"id"`
	Sender     string         `json:"sender"`
	Recipients []string       `json:"recipients"`
	Content    string         `json:"content"`
	Type       MessageType    `json:"message_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

// NewMessage builds a Message with a fresh ID and a UTC timestamp.
// The recipients slice and metadata map are copied.
func NewMessage(sender string, recipients []string, content string, typ MessageType, metadata map[string]any) Message {
	rcpt := make([]string, len(recipients))
	copy(rcpt, recipients)

	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	return Message{
		ID:         uuid.NewString(),
		Sender:     sender,
		Recipients: rcpt,
		Content:    content,
		Type:       typ,
		Timestamp:  time.Now().UTC(),
		Metadata:   meta,
	}
}

// ── Agent ────────────────────────────────────────────────────

type AgentState string

const (
	AgentStateIdle       AgentState = "idle"
	AgentStateProcessing AgentState = "processing"
	AgentStateRestarting AgentState = "restarting"
	AgentStateFailed     AgentState = "failed"
	AgentStateTerminated AgentState = "terminated"
)

// Valid reports whether s is one of the known agent states.
func (s AgentState) Valid() bool {
	switch s {
	case AgentStateIdle, AgentStateProcessing, AgentStateRestarting, AgentStateFailed, AgentStateTerminated:
		return true
	}
	return false
}

// AgentConfig is the immutable request used to spawn an agent.
type AgentConfig struct {
	Name           string         `json:"name"`
	AgentType      string         `json:"agent_type"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model,omitempty"`
	Instructions   string         `json:"instructions,omitempty"`
	Cwd            string         `json:"cwd,omitempty"`
	AllowedTools   []string       `json:"allowed_tools,omitempty"`
	PermissionMode string         `json:"permission_mode,omitempty"`
	SettingSources []string       `json:"setting_sources,omitempty"`
	BaseURL        string         `json:"base_url,omitempty"`
	APIKey         string         `json:"api_key,omitempty"`
	Credentials    map[string]any `json:"credentials,omitempty"`
}

// Credential returns the string credential stored under key, or "".
func (c AgentConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	s, _ := c.Credentials[key].(string)
	return s
}

// AgentInfo is a point-in-time view of a registered agent.
type AgentInfo struct {
	Name      string     `json:"name"`
	AgentType string     `json:"agent_type"`
	Provider  string     `json:"provider"`
	State     AgentState `json:"state"`
}

// AgentFilter selects agents by state and/or provider. Empty fields match all.
type AgentFilter struct {
	State    AgentState
	Provider string
}

// Match reports whether info satisfies every non-empty field of the filter.
func (f AgentFilter) Match(info AgentInfo) bool {
	if f.State != "" && info.State != f.State {
		return false
	}
	if f.Provider != "" && info.Provider != f.Provider {
		return false
	}
	return true
}

// ShutdownReport summarizes a bulk shutdown.
type ShutdownReport struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// NewShutdownReport returns an empty report with non-nil collections.
func NewShutdownReport() ShutdownReport {
	return ShutdownReport{
		Succeeded: []string{},
		Failed:    map[string]string{},
	}
}

// ── Wire Types ───────────────────────────────────────────────

// SpawnRequest is the body of POST /agents.
type SpawnRequest = AgentConfig

// MessageRequest is the body of POST /agents/{name}/message.
type MessageRequest struct {
	Content string `json:"content"`
}

// TaskRequest is the body of POST /agents/{name}/task.
type TaskRequest struct {
	AgentConfig
	Prompt string `json:"prompt"`
}

// MessagesResponse wraps a list of messages.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
}
