// Package openai implements agents on OpenAI-compatible Chat Completions
// endpoints using streaming responses.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/pkg/models"
	gopenai "github.com/sashabaranov/go-openai"
)

const (
	// Kind is the provider kind used in spawn requests.
	Kind = "openai"
	// AgentKind is the agent type reported for chat agents.
	AgentKind = "api"
)

// Provider builds Chat Completions agents.
type Provider struct {
	getenv    func(string) string
	transport http.RoundTripper
}

// Option customizes a Provider.
type Option func(*Provider)

// WithGetenv overrides environment lookups for API keys.
func WithGetenv(fn func(string) string) Option {
	return func(p *Provider) { p.getenv = fn }
}

// WithTransport sets the base transport for agent HTTP clients.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.transport = rt }
}

// New creates a provider.
func New(opts ...Option) *Provider {
	p := &Provider{getenv: os.Getenv}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Kind() string { return Kind }

func (p *Provider) ValidateCredentials(context.Context) bool {
	return p.getenv(envAPIKey) != ""
}

func (p *Provider) CreateAgent(_ context.Context, cfg models.AgentConfig) (provider.Agent, error) {
	if cfg.Model == "" {
		return nil, provider.ValidationError("openai.create_agent", "model is required")
	}
	key, err := ResolveAPIKey(cfg, p.getenv)
	if err != nil {
		return nil, err
	}

	base := p.transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	httpClient := &http.Client{Transport: &headerTransport{
		base:    base,
		headers: defaultHeaders(cfg),
	}}

	clientCfg := gopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = httpClient

	kind := cfg.AgentType
	if kind == "" {
		kind = AgentKind
	}

	a := &Agent{
		name:       cfg.Name,
		kind:       kind,
		model:      cfg.Model,
		client:     gopenai.NewClientWithConfig(clientCfg),
		httpClient: httpClient,
		state:      models.AgentStateIdle,
	}
	if cfg.Instructions != "" {
		a.history = append(a.history, gopenai.ChatCompletionMessage{
			Role:    gopenai.ChatMessageRoleSystem,
			Content: cfg.Instructions,
		})
	}
	return a, nil
}

func defaultHeaders(cfg models.AgentConfig) map[string]string {
	raw, ok := cfg.Credentials["default_headers"].(map[string]any)
	if !ok {
		if typed, ok := cfg.Credentials["default_headers"].(map[string]string); ok {
			return typed
		}
		return nil
	}
	headers := make(map[string]string, len(raw))
	for k, v := range raw {
		headers[k] = fmt.Sprint(v)
	}
	return headers
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func (t *headerTransport) CloseIdleConnections() {
	if ci, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
