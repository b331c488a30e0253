package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/session"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Fake backend ────────────────────────────────────────────

type sliceEvents struct {
	events []session.Event
	err    error
	closed bool
}

func (s *sliceEvents) Next() (session.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return session.Event{}, s.err
		}
		return session.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceEvents) Close() error { s.closed = true; return nil }

type fakeBackend struct {
	mu         sync.Mutex
	queries    []string
	opts       []session.Options
	queryErr   error
	streamErr  error
	clients    []*fakeClient
	disconnErr error
	available  bool

	// connecting, when set, receives once per Connect, which then blocks
	// until connectGate is closed.
	connecting  chan struct{}
	connectGate chan struct{}
}

func turnEvents(text string) []session.Event {
	return []session.Event{
		{Type: session.EventSystem, Subtype: "init"},
		{Type: session.EventAssistant, Message: &session.EventMessage{Role: "assistant", Content: session.Content{{Type: session.BlockText, Text: text}}}},
		{Type: session.EventResult, Subtype: session.SubtypeSuccess, Result: "done"},
	}
}

func (b *fakeBackend) Query(_ context.Context, prompt string, opts session.Options) (session.Events, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, prompt)
	b.opts = append(b.opts, opts)
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	return &sliceEvents{events: turnEvents("re: " + prompt), err: b.streamErr}, nil
}

func (b *fakeBackend) NewClient(opts session.Options) session.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &fakeClient{disconnErr: b.disconnErr, connecting: b.connecting, gate: b.connectGate}
	b.clients = append(b.clients, c)
	return c
}

func (b *fakeBackend) Clients() []*fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeClient(nil), b.clients...)
}

func (b *fakeBackend) Available(session.Options) bool { return b.available }

type fakeClient struct {
	connects    int
	disconnects int
	turns       int
	prompt      string
	disconnErr  error
	connecting  chan struct{}
	gate        chan struct{}
}

func (c *fakeClient) Connect(context.Context) error {
	if c.connecting != nil {
		c.connecting <- struct{}{}
		<-c.gate
	}
	c.connects++
	return nil
}
func (c *fakeClient) Query(_ context.Context, p string) error {
	c.turns++
	c.prompt = p
	return nil
}
func (c *fakeClient) Receive() session.Events {
	return &sliceEvents{events: turnEvents(fmt.Sprintf("turn %d: %s", c.turns, c.prompt))}
}
func (c *fakeClient) Disconnect() error { c.disconnects++; return c.disconnErr }

func newAgent(t *testing.T, b *fakeBackend, cfg models.AgentConfig) provider.Agent {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "coder"
	}
	a, err := session.New(b).CreateAgent(context.Background(), cfg)
	require.NoError(t, err)
	return a
}

func human(content string) models.Message {
	return models.NewMessage(models.SenderHuman, []string{"coder"}, content, models.MessageTypeChat, nil)
}

// ─── Tests ───────────────────────────────────────────────────

func TestOneShotTurn(t *testing.T) {
	b := &fakeBackend{}
	a := newAgent(t, b, models.AgentConfig{Instructions: "be brief", Model: "sonnet", Cwd: "/tmp"})
	assert.Equal(t, session.AgentKind, a.Kind())

	out, err := provider.Collect(a.HandleMessage(context.Background(), human("hi")))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "re: hi", out[0].Content)
	assert.Equal(t, "done", out[1].Content)
	assert.Equal(t, models.AgentStateIdle, a.State())

	require.Len(t, b.opts, 1)
	assert.Equal(t, "be brief", b.opts[0].SystemPrompt)
	assert.Equal(t, "sonnet", b.opts[0].Model)
	assert.Equal(t, "/tmp", b.opts[0].Cwd)
	assert.Equal(t, session.DefaultPermissionMode, b.opts[0].PermissionMode)
}

func TestMultiTurnReusesSession(t *testing.T) {
	b := &fakeBackend{}
	a := newAgent(t, b, models.AgentConfig{Credentials: map[string]any{"mode": "client"}})

	for _, p := range []string{"one", "two"} {
		_, err := provider.Collect(a.HandleMessage(context.Background(), human(p)))
		require.NoError(t, err)
	}

	require.Len(t, b.clients, 1)
	c := b.clients[0]
	assert.Equal(t, 1, c.connects)
	assert.Equal(t, 2, c.turns)
	assert.Empty(t, b.queries)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, 1, c.disconnects)
	assert.Equal(t, models.AgentStateTerminated, a.State())
}

func TestShutdownSwallowsDisconnectError(t *testing.T) {
	b := &fakeBackend{disconnErr: errors.New("broken pipe")}
	a := newAgent(t, b, models.AgentConfig{Credentials: map[string]any{"mode": "client"}})
	_, err := provider.Collect(a.HandleMessage(context.Background(), human("hi")))
	require.NoError(t, err)

	assert.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, models.AgentStateTerminated, a.State())
}

func TestUnknownModeRejected(t *testing.T) {
	_, err := session.New(&fakeBackend{}).CreateAgent(context.Background(), models.AgentConfig{
		Name:        "x",
		Credentials: map[string]any{"mode": "telepathy"},
	})
	assert.ErrorIs(t, err, provider.ErrValidation)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		queryErr error
		want     error
		status   int
	}{
		{"cli missing", fmt.Errorf("%w: claude", session.ErrCLINotFound), provider.ErrAuth, 0},
		{"process exit", &session.ProcessError{ExitCode: 2, Stderr: "boom"}, provider.ErrAPI, 2},
		{"decode", &session.DecodeError{Line: "{", Err: errors.New("eof")}, provider.ErrProvider, 0},
		{"connection", session.ErrConnection, provider.ErrProvider, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAgent(t, &fakeBackend{queryErr: tt.queryErr}, models.AgentConfig{})

			_, err := provider.Collect(a.HandleMessage(context.Background(), human("hi")))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, provider.ErrProvider)
			if tt.status != 0 {
				code, ok := provider.StatusCode(err)
				assert.True(t, ok)
				assert.Equal(t, tt.status, code)
			}
			assert.Equal(t, models.AgentStateFailed, a.State())
		})
	}
}

func TestMidStreamFailureKeepsPartialOutput(t *testing.T) {
	b := &fakeBackend{streamErr: &session.ProcessError{ExitCode: 1}}
	a := newAgent(t, b, models.AgentConfig{})

	out, err := provider.Collect(a.HandleMessage(context.Background(), human("hi")))
	assert.ErrorIs(t, err, provider.ErrAPI)
	assert.Len(t, out, 2)
	assert.Equal(t, models.AgentStateFailed, a.State())
}

func TestValidateCredentials(t *testing.T) {
	assert.True(t, session.New(&fakeBackend{available: true}).ValidateCredentials(context.Background()))
	assert.False(t, session.New(&fakeBackend{}).ValidateCredentials(context.Background()))
}

func TestShutdownWhileConnectingClosesLateSession(t *testing.T) {
	b := &fakeBackend{connecting: make(chan struct{}), connectGate: make(chan struct{})}
	a := newAgent(t, b, models.AgentConfig{Credentials: map[string]any{"mode": "client"}})

	stream := a.HandleMessage(context.Background(), human("hi"))
	<-b.connecting
	require.NoError(t, a.Shutdown(context.Background()))
	close(b.connectGate)

	out, err := provider.Collect(stream)
	assert.ErrorIs(t, err, provider.ErrAgentUnavailable)
	assert.Empty(t, out)

	clients := b.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, 0, clients[0].turns, "no turn may run on a terminated agent")
	assert.Equal(t, 1, clients[0].disconnects)
	assert.Equal(t, models.AgentStateTerminated, a.State())
}

func TestTerminatedAgentRefusesTurns(t *testing.T) {
	b := &fakeBackend{}
	a := newAgent(t, b, models.AgentConfig{})
	require.NoError(t, a.Shutdown(context.Background()))

	_, err := provider.Collect(a.HandleMessage(context.Background(), human("hi")))
	assert.ErrorIs(t, err, provider.ErrAgentUnavailable)
	assert.Empty(t, b.queries)
	assert.Equal(t, models.AgentStateTerminated, a.State())
}

func TestFailedAgentStaysFailed(t *testing.T) {
	b := &fakeBackend{queryErr: &session.ProcessError{ExitCode: 1}}
	a := newAgent(t, b, models.AgentConfig{})

	_, err := provider.Collect(a.HandleMessage(context.Background(), human("one")))
	require.ErrorIs(t, err, provider.ErrAPI)

	b.mu.Lock()
	b.queryErr = nil
	b.mu.Unlock()

	_, err = provider.Collect(a.HandleMessage(context.Background(), human("two")))
	assert.ErrorIs(t, err, provider.ErrAgentUnavailable)
	assert.Equal(t, models.AgentStateFailed, a.State())
	assert.Equal(t, []string{"one"}, b.queries)
}
