// Package registry tracks live agents by unique name.
//
// The registry owns each agent together with the config that spawned it;
// both are inserted and removed as one entry. Names are reserved before
// the provider builds an agent so a concurrent spawn of the same name
// fails instead of racing.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrAgentExists   = errors.New("agent already exists")
	ErrAgentNotFound = errors.New("agent not found")
)

type entry struct {
	agent  provider.Agent
	config models.AgentConfig
}

// Registry is a thread-safe, insertion-ordered set of agents.
type Registry struct {
	providers *provider.Registry

	mu      sync.RWMutex
	order   []string
	entries map[string]entry
	pending map[string]struct{}
}

// New creates an empty registry resolving providers from providers.
func New(providers *provider.Registry) *Registry {
	return &Registry{
		providers: providers,
		entries:   make(map[string]entry),
		pending:   make(map[string]struct{}),
	}
}

// Spawn creates an agent from cfg and registers it under cfg.Name.
// Nothing is registered when any step fails.
func (r *Registry) Spawn(ctx context.Context, cfg models.AgentConfig) (provider.Agent, error) {
	if err := r.reserve(cfg.Name); err != nil {
		return nil, err
	}
	defer r.release(cfg.Name)

	p, err := r.providers.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}

	// Provider errors are returned unmodified.
	agent, err := p.CreateAgent(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("agent", cfg.Name).Str("provider", cfg.Provider).Msg("agent.spawn_failed")
		return nil, err
	}

	r.mu.Lock()
	r.entries[cfg.Name] = entry{agent: agent, config: cfg}
	r.order = append(r.order, cfg.Name)
	r.mu.Unlock()

	log.Info().
		Str("agent", cfg.Name).
		Str("provider", cfg.Provider).
		Str("agent_type", cfg.AgentType).
		Msg("agent.spawned")
	return agent, nil
}

func (r *Registry) reserve(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrAgentExists, name)
	}
	if _, ok := r.pending[name]; ok {
		return fmt.Errorf("%w: %q", ErrAgentExists, name)
	}
	r.pending[name] = struct{}{}
	return nil
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	delete(r.pending, name)
	r.mu.Unlock()
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (provider.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return e.agent, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Config returns the config an agent was spawned with.
func (r *Registry) Config(name string) (models.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return models.AgentConfig{}, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return e.config, nil
}

// Info returns a snapshot of one agent.
func (r *Registry) Info(name string) (models.AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return models.AgentInfo{}, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return info(e), nil
}

func info(e entry) models.AgentInfo {
	return models.AgentInfo{
		Name:      e.config.Name,
		AgentType: e.agent.Kind(),
		Provider:  e.config.Provider,
		State:     e.agent.State(),
	}
}

// List returns agents matching filter in insertion order.
func (r *Registry) List(filter models.AgentFilter) []models.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AgentInfo, 0, len(r.order))
	for _, name := range r.order {
		ai := info(r.entries[name])
		if filter.Match(ai) {
			out = append(out, ai)
		}
	}
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ShutdownOne shuts down and unregisters name. The entry is removed even
// when the agent's shutdown fails; that failure is still returned.
func (r *Registry) ShutdownOne(ctx context.Context, name string) (err error) {
	agent, err := r.Get(name)
	if err != nil {
		return err
	}
	defer func() {
		r.remove(name)
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("agent", name).Msg("agent.shutdown")
	}()

	if err := agent.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown agent %q: %w", name, err)
	}
	return nil
}

func (r *Registry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// ShutdownAll shuts every agent down sequentially and reports per-agent
// outcomes. The registry is empty afterwards.
func (r *Registry) ShutdownAll(ctx context.Context) models.ShutdownReport {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()

	report := models.NewShutdownReport()
	for _, name := range names {
		err := r.ShutdownOne(ctx, name)
		switch {
		case err == nil:
			report.Succeeded = append(report.Succeeded, name)
		case errors.Is(err, ErrAgentNotFound):
			// removed concurrently
		default:
			report.Failed[name] = err.Error()
		}
	}
	return report
}
