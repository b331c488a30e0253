// Package engine is the orchestration facade used by every transport.
//
// It owns a private agent registry and the conversation history store:
//
//	HTTP handlers / CLI
//	    └─► Engine
//	            ├─► registry.Registry ─► provider.Registry ─► Provider ─► Agent
//	            └─► history.MemoryStore
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentoven/orchestrator/internal/history"
	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/registry"
	"github.com/agentoven/orchestrator/pkg/models"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("orchestrator/engine")

// Defaults fill unset fields of spawn requests.
type Defaults struct {
	Provider string
	Model    string
	Cwd      string
}

// Engine coordinates agents and their conversation histories.
type Engine struct {
	providers *provider.Registry
	agents    *registry.Registry
	history   *history.MemoryStore
	defaults  Defaults
}

// New creates an engine backed by providers.
func New(providers *provider.Registry, defaults Defaults) *Engine {
	return &Engine{
		providers: providers,
		agents:    registry.New(providers),
		history:   history.NewMemoryStore(),
		defaults:  defaults,
	}
}

func (e *Engine) applyDefaults(cfg models.AgentConfig) (models.AgentConfig, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return cfg, provider.ValidationError("engine.spawn_agent", "name is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = e.defaults.Provider
	}
	if cfg.Provider == "" {
		return cfg, provider.ValidationError("engine.spawn_agent", "provider is required")
	}
	if cfg.Model == "" {
		cfg.Model = e.defaults.Model
	}
	if cfg.Cwd == "" {
		cfg.Cwd = e.defaults.Cwd
	}
	return cfg, nil
}

// SpawnAgent creates and registers an agent, starting it with an empty
// conversation history.
func (e *Engine) SpawnAgent(ctx context.Context, cfg models.AgentConfig) (models.AgentInfo, error) {
	cfg, err := e.applyDefaults(cfg)
	if err != nil {
		return models.AgentInfo{}, err
	}

	ctx, span := tracer.Start(ctx, "engine.spawn_agent")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.name", cfg.Name),
		attribute.String("agent.provider", cfg.Provider),
	)

	if err := e.providers.Load(cfg.Provider); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.AgentInfo{}, err
	}

	if _, err := e.agents.Spawn(ctx, cfg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.AgentInfo{}, err
	}
	e.history.Reset(cfg.Name)

	return e.agents.Info(cfg.Name)
}

// SendMessage delivers content from the human user to name and returns
// every response. On failure the responses produced before the error
// are still recorded in history.
func (e *Engine) SendMessage(ctx context.Context, name, content string) ([]models.Message, error) {
	agent, err := e.agents.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "engine.send_message")
	defer span.End()
	span.SetAttributes(attribute.String("agent.name", name))

	msg := models.NewMessage(models.SenderHuman, []string{name}, content, models.MessageTypeChat, nil)
	e.history.Append(name, msg)

	responses, err := provider.Collect(agent.HandleMessage(ctx, msg))
	e.history.Append(name, responses...)
	span.SetAttributes(attribute.Int("agent.responses", len(responses)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("agent", name).Int("partial", len(responses)).Msg("agent.message_failed")
		return responses, fmt.Errorf("agent %q: %w", name, err)
	}
	if responses == nil {
		responses = []models.Message{}
	}
	return responses, nil
}

// RunTask spawns an ephemeral agent, sends it prompt, and shuts it down.
// The conversation stays in history under cfg.Name.
func (e *Engine) RunTask(ctx context.Context, cfg models.AgentConfig, prompt string) ([]models.Message, error) {
	info, err := e.SpawnAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.agents.ShutdownOne(context.WithoutCancel(ctx), info.Name); err != nil {
			log.Warn().Err(err).Str("agent", info.Name).Msg("task agent shutdown failed")
		}
	}()

	return e.SendMessage(ctx, info.Name, prompt)
}

// GetHistory returns name's conversation; limit > 0 keeps only the most
// recent messages. Unknown names yield an empty list.
func (e *Engine) GetHistory(name string, limit int) []models.Message {
	return e.history.Get(name, limit)
}

// GetAgent returns a snapshot of name.
func (e *Engine) GetAgent(name string) (models.AgentInfo, error) {
	return e.agents.Info(name)
}

// ListAgents returns agents matching filter in spawn order.
func (e *Engine) ListAgents(filter models.AgentFilter) []models.AgentInfo {
	return e.agents.List(filter)
}

// AgentCount returns the number of live agents.
func (e *Engine) AgentCount() int {
	return e.agents.Len()
}

// ShutdownAgent stops and unregisters name. Its history is kept.
func (e *Engine) ShutdownAgent(ctx context.Context, name string) error {
	return e.agents.ShutdownOne(ctx, name)
}

// ShutdownAll stops every agent. Histories are kept.
func (e *Engine) ShutdownAll(ctx context.Context) models.ShutdownReport {
	report := e.agents.ShutdownAll(ctx)
	log.Info().
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Msg("agents shut down")
	return report
}

// Providers lists the provider kinds the engine can spawn.
func (e *Engine) Providers() []string {
	return e.providers.Kinds()
}
