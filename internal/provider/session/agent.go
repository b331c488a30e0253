package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/rs/zerolog/log"
)

// Mode selects how an agent drives the CLI.
type Mode string

const (
	// ModeQuery runs each message in its own one-shot process.
	ModeQuery Mode = "query"
	// ModeClient keeps one multi-turn session for the agent's lifetime.
	ModeClient Mode = "client"
)

// Agent is a CLI-backed agent.
type Agent struct {
	name    string
	kind    string
	mode    Mode
	opts    Options
	backend Backend

	turn sync.Mutex // one turn at a time

	mu     sync.Mutex
	state  models.AgentState
	client Client
}

func (a *Agent) Name() string { return a.name }
func (a *Agent) Kind() string { return a.kind }
func (a *Agent) Mode() Mode   { return a.mode }

func (a *Agent) State() models.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s models.AgentState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == models.AgentStateTerminated {
		return
	}
	a.state = s
}

// begin moves the agent to processing. Failed and terminated agents
// refuse new turns.
func (a *Agent) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == models.AgentStateFailed || a.state == models.AgentStateTerminated {
		return provider.Unavailable("session.handle_message", a.name, a.state)
	}
	a.state = models.AgentStateProcessing
	return nil
}

// HandleMessage runs one turn. A failed agent stays failed until it is
// shut down and spawned again.
func (a *Agent) HandleMessage(ctx context.Context, msg models.Message) *provider.Stream {
	if err := a.begin(); err != nil {
		return provider.Failed(err)
	}

	return provider.NewStream(ctx, func(ctx context.Context, emit provider.EmitFunc) error {
		a.turn.Lock()
		defer a.turn.Unlock()

		// A queued turn may start after a failure or a shutdown.
		if st := a.State(); st == models.AgentStateFailed || st == models.AgentStateTerminated {
			return provider.Unavailable("session.handle_message", a.name, st)
		}

		err := a.run(ctx, msg.Content, emit)
		switch {
		case errors.Is(err, provider.ErrAgentUnavailable):
			return err
		case err == nil:
			a.setState(models.AgentStateIdle)
			return nil
		case errors.Is(ctx.Err(), context.Canceled):
			// The consumer went away; the agent is still usable.
			a.dropClient()
			a.setState(models.AgentStateIdle)
			return ctx.Err()
		default:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = ctx.Err()
			}
			a.dropClient()
			a.setState(models.AgentStateFailed)
			mapped := mapError("session.handle_message", err)
			log.Warn().Err(mapped).Str("agent", a.name).Msg("agent turn failed")
			return mapped
		}
	})
}

func (a *Agent) run(ctx context.Context, prompt string, emit provider.EmitFunc) error {
	events, err := a.open(ctx, prompt)
	if err != nil {
		return err
	}
	defer events.Close()
	stop := context.AfterFunc(ctx, func() { _ = events.Close() })
	defer stop()

	for {
		ev, err := events.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		for _, m := range Translate(a.name, ev) {
			if err := emit(m); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) open(ctx context.Context, prompt string) (Events, error) {
	if a.mode != ModeClient {
		return a.backend.Query(ctx, prompt, a.opts)
	}

	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil {
		c = a.backend.NewClient(a.opts)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		a.mu.Lock()
		st := a.state
		if st != models.AgentStateTerminated {
			a.client = c
		}
		a.mu.Unlock()
		if st == models.AgentStateTerminated {
			// Shutdown ran while connecting and found no session to close.
			if err := c.Disconnect(); err != nil {
				log.Warn().Err(err).Str("agent", a.name).Msg("session disconnect failed")
			}
			return nil, provider.Unavailable("session.handle_message", a.name, st)
		}
	}
	if err := c.Query(ctx, prompt); err != nil {
		return nil, err
	}
	return c.Receive(), nil
}

// dropClient discards a session left in an unknown position so the next
// message reconnects.
func (a *Agent) dropClient() {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.mu.Unlock()
	if c != nil {
		_ = c.Disconnect()
	}
}

// Shutdown disconnects a multi-turn session. Disconnect failures are
// logged, not returned.
func (a *Agent) Shutdown(context.Context) error {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.state = models.AgentStateTerminated
	a.mu.Unlock()

	if c != nil {
		if err := c.Disconnect(); err != nil {
			log.Warn().Err(err).Str("agent", a.name).Msg("session disconnect failed")
		}
	}
	return nil
}

func mapError(op string, err error) error {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return err
	}
	var procErr *ProcessError
	switch {
	case errors.Is(err, ErrCLINotFound):
		return provider.AuthError(op, "agent CLI is not installed", err)
	case errors.As(err, &procErr):
		return provider.APIError(op, procErr.ExitCode, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return provider.TimeoutError(op, err)
	default:
		return provider.NewError(op, provider.ErrProvider, fmt.Errorf("session: %w", err))
	}
}
