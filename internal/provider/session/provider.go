// Package session implements agents backed by a local agent CLI that
// streams JSON events over stdout.
//
// Two modes are supported: "query" launches one process per message,
// "client" keeps a persistent multi-turn process per agent and feeds it
// messages on stdin.
package session

import (
	"context"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
)

const (
	// Kind is the provider kind used in spawn requests.
	Kind = "sdk"
	// AgentKind is the agent type reported for session agents.
	AgentKind = "sdk"

	DefaultPermissionMode = "acceptEdits"
)

// Provider builds session agents on a Backend.
type Provider struct {
	backend Backend
}

// New creates a provider using backend.
func New(backend Backend) *Provider {
	return &Provider{backend: backend}
}

// NewCLI creates a provider driving the agent CLI found at cliPath, or
// on PATH when cliPath is empty.
func NewCLI(cliPath string) *Provider {
	return New(NewCLIBackend(cliPath))
}

func (p *Provider) Kind() string { return Kind }

func (p *Provider) ValidateCredentials(context.Context) bool {
	return p.backend.Available(Options{})
}

func (p *Provider) CreateAgent(_ context.Context, cfg models.AgentConfig) (provider.Agent, error) {
	mode := Mode(cfg.Credential("mode"))
	switch mode {
	case "":
		mode = ModeQuery
	case ModeQuery, ModeClient:
	default:
		return nil, provider.ValidationError("session.create_agent", "unknown mode "+string(mode))
	}

	permission := cfg.PermissionMode
	if permission == "" {
		permission = DefaultPermissionMode
	}

	kind := cfg.AgentType
	if kind == "" {
		kind = AgentKind
	}

	return &Agent{
		name: cfg.Name,
		kind: kind,
		mode: mode,
		opts: Options{
			CLIPath:        cfg.Credential("cli_path"),
			SystemPrompt:   cfg.Instructions,
			Model:          cfg.Model,
			AllowedTools:   cfg.AllowedTools,
			PermissionMode: permission,
			SettingSources: cfg.SettingSources,
			Cwd:            cfg.Cwd,
		},
		backend: p.backend,
		state:   models.AgentStateIdle,
	}, nil
}
