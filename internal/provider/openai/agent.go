package openai

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/rs/zerolog/log"
	gopenai "github.com/sashabaranov/go-openai"
)

// Agent is a Chat Completions agent. Its turn history is replayed on
// every call.
type Agent struct {
	name       string
	kind       string
	model      string
	client     *gopenai.Client
	httpClient *http.Client

	turn sync.Mutex // one turn at a time

	mu      sync.Mutex
	state   models.AgentState
	history []gopenai.ChatCompletionMessage
}

func (a *Agent) Name() string { return a.name }
func (a *Agent) Kind() string { return a.kind }

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

// History returns a copy of the turns sent on the next call.
func (a *Agent) History() []gopenai.ChatCompletionMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gopenai.ChatCompletionMessage(nil), a.history...)
}

func (a *Agent) appendTurn(m gopenai.ChatCompletionMessage) []gopenai.ChatCompletionMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
	return append([]gopenai.ChatCompletionMessage(nil), a.history...)
}

func (a *Agent) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == models.AgentStateFailed || a.state == models.AgentStateTerminated {
		return provider.Unavailable("openai.handle_message", a.name, a.state)
	}
	a.state = models.AgentStateProcessing
	return nil
}

// HandleMessage runs one streaming call. Failed and terminated agents
// refuse new turns.
func (a *Agent) HandleMessage(ctx context.Context, msg models.Message) *provider.Stream {
	if err := a.begin(); err != nil {
		return provider.Failed(err)
	}

	return provider.NewStream(ctx, func(ctx context.Context, emit provider.EmitFunc) error {
		a.turn.Lock()
		defer a.turn.Unlock()

		if st := a.State(); st == models.AgentStateFailed || st == models.AgentStateTerminated {
			return provider.Unavailable("openai.handle_message", a.name, st)
		}

		out, err := a.complete(ctx, msg.Content)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				a.setState(models.AgentStateIdle)
				return ctx.Err()
			}
			mapped := mapError("openai.handle_message", err)
			a.setState(models.AgentStateFailed)
			log.Warn().Err(mapped).Str("agent", a.name).Msg("agent turn failed")
			return mapped
		}

		for _, m := range out {
			if err := emit(m); err != nil {
				a.setState(models.AgentStateIdle)
				return err
			}
		}
		a.setState(models.AgentStateIdle)
		return nil
	})
}

type toolCallFragment struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// complete runs one streaming call and returns the translated messages.
func (a *Agent) complete(ctx context.Context, content string) ([]models.Message, error) {
	turns := a.appendTurn(gopenai.ChatCompletionMessage{
		Role:    gopenai.ChatMessageRoleUser,
		Content: content,
	})

	stream, err := a.client.CreateChatCompletionStream(ctx, gopenai.ChatCompletionRequest{
		Model:    a.model,
		Messages: turns,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var text strings.Builder
	fragments := map[int]*toolCallFragment{}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		// Only the first choice is followed.
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		text.WriteString(delta.Content)
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			f, ok := fragments[idx]
			if !ok {
				f = &toolCallFragment{}
				fragments[idx] = f
			}
			if tc.ID != "" {
				f.id = tc.ID
			}
			f.name.WriteString(tc.Function.Name)
			f.args.WriteString(tc.Function.Arguments)
		}
	}

	calls := flattenToolCalls(fragments)
	assistant := gopenai.ChatCompletionMessage{
		Role:    gopenai.ChatMessageRoleAssistant,
		Content: text.String(),
	}
	if len(calls) > 0 {
		assistant.ToolCalls = calls
	}
	a.appendTurn(assistant)

	return translate(a.name, a.model, text.String(), calls), nil
}

func flattenToolCalls(fragments map[int]*toolCallFragment) []gopenai.ToolCall {
	indices := make([]int, 0, len(fragments))
	for i := range fragments {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	calls := make([]gopenai.ToolCall, 0, len(indices))
	for _, i := range indices {
		f := fragments[i]
		idx := i
		calls = append(calls, gopenai.ToolCall{
			Index: &idx,
			ID:    f.id,
			Type:  gopenai.ToolTypeFunction,
			Function: gopenai.FunctionCall{
				Name:      f.name.String(),
				Arguments: f.args.String(),
			},
		})
	}
	return calls
}

// Shutdown closes idle connections held by the agent's HTTP client.
func (a *Agent) Shutdown(context.Context) error {
	a.httpClient.CloseIdleConnections()
	a.mu.Lock()
	a.state = models.AgentStateTerminated
	a.mu.Unlock()
	return nil
}

func mapError(op string, err error) error {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		return byStatus(op, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		return byStatus(op, reqErr.HTTPStatusCode, "", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return provider.TimeoutError(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return provider.TimeoutError(op, err)
	}
	return provider.NewError(op, provider.ErrProvider, err)
}

func byStatus(op string, status int, detail string, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.AuthError(op, detail, err)
	case status == 0:
		return provider.NewError(op, provider.ErrProvider, err)
	default:
		return provider.APIError(op, status, detail, err)
	}
}
