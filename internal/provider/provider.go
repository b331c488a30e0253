// Package provider defines the backend-neutral agent abstraction.
//
// A Provider builds Agents for one backend kind. An Agent accepts one
// Message at a time and answers with a Stream of translated Messages.
//
//	Engine
//	  └─► Registry.Spawn(cfg)
//	          └─► Provider.CreateAgent(cfg)   (session | openai | ...)
//	                  └─► Agent.HandleMessage(msg) ─► Stream[Message]
package provider

import (
	"context"

	"github.com/agentoven/orchestrator/pkg/models"
)

// Agent is a running conversational agent.
type Agent interface {
	Name() string
	// Kind is the agent type reported in AgentInfo, e.g. "sdk" or "api".
	Kind() string
	State() models.AgentState
	// HandleMessage sets the agent to processing and returns the lazily
	// produced responses. Errors surface from Stream.Recv.
	HandleMessage(ctx context.Context, msg models.Message) *Stream
	// Shutdown releases backend resources. The agent ends terminated
	// even when the release fails.
	Shutdown(ctx context.Context) error
}

// Provider creates agents for one backend kind.
type Provider interface {
	Kind() string
	CreateAgent(ctx context.Context, cfg models.AgentConfig) (Agent, error)
	ValidateCredentials(ctx context.Context) bool
}
