// Package providertest supplies in-memory providers and agents for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
)

// Reply computes an agent's responses to one inbound message.
type Reply func(agent string, msg models.Message) ([]models.Message, error)

// Echo replies with a single chat message repeating the content.
func Echo(agent string, msg models.Message) ([]models.Message, error) {
	return []models.Message{
		models.NewMessage(agent, []string{msg.Sender}, "echo: "+msg.Content, models.MessageTypeChat, nil),
	}, nil
}

// Provider is a configurable fake provider.
type Provider struct {
	KindName    string
	Reply       Reply
	CreateErr   error
	ShutdownErr map[string]error // by agent name
	Valid       bool

	mu      sync.Mutex
	created []*Agent
	// Gate, when set, blocks CreateAgent until it is closed.
	Gate chan struct{}
}

// New returns an echoing provider for kind.
func New(kind string) *Provider {
	return &Provider{KindName: kind, Reply: Echo, Valid: true}
}

func (p *Provider) Kind() string { return p.KindName }

func (p *Provider) ValidateCredentials(context.Context) bool { return p.Valid }

func (p *Provider) CreateAgent(ctx context.Context, cfg models.AgentConfig) (provider.Agent, error) {
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	a := &Agent{
		name:  cfg.Name,
		kind:  cfg.AgentType,
		reply: p.Reply,
		state: models.AgentStateIdle,
	}
	if p.ShutdownErr != nil {
		a.shutdownErr = p.ShutdownErr[cfg.Name]
	}
	p.mu.Lock()
	p.created = append(p.created, a)
	p.mu.Unlock()
	return a, nil
}

// Created returns the agents built so far.
func (p *Provider) Created() []*Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Agent(nil), p.created...)
}

// Agent is a fake agent driven by a Reply func.
type Agent struct {
	name        string
	kind        string
	reply       Reply
	shutdownErr error

	mu       sync.Mutex
	state    models.AgentState
	received []models.Message
	shutdown int
}

func (a *Agent) Name() string { return a.name }
func (a *Agent) Kind() string { return a.kind }

func (a *Agent) State() models.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) SetState(s models.AgentState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) HandleMessage(ctx context.Context, msg models.Message) *provider.Stream {
	a.mu.Lock()
	if st := a.state; st == models.AgentStateFailed || st == models.AgentStateTerminated {
		a.mu.Unlock()
		return provider.Failed(provider.Unavailable("mock.handle_message", a.name, st))
	}
	a.state = models.AgentStateProcessing
	a.received = append(a.received, msg)
	a.mu.Unlock()

	return provider.NewStream(ctx, func(ctx context.Context, emit provider.EmitFunc) error {
		out, err := a.reply(a.name, msg)
		for _, m := range out {
			if e := emit(m); e != nil {
				return e
			}
		}
		if err != nil {
			a.SetState(models.AgentStateFailed)
			return err
		}
		a.SetState(models.AgentStateIdle)
		return nil
	})
}

func (a *Agent) Shutdown(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdown++
	a.state = models.AgentStateTerminated
	return a.shutdownErr
}

// Received returns the messages handled so far.
func (a *Agent) Received() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Message(nil), a.received...)
}

// ShutdownCalls reports how often Shutdown ran.
func (a *Agent) ShutdownCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdown
}
