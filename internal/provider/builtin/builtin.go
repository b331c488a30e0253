// Package builtin registers the providers shipped with the daemon.
package builtin

import (
	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/openai"
	"github.com/agentoven/orchestrator/internal/provider/session"
)

// Options configures the built-in providers.
type Options struct {
	// CLIPath is the agent CLI used by session agents; empty searches PATH.
	CLIPath string
}

// Register makes every built-in kind loadable on r. Providers are only
// instantiated when a spawn first asks for their kind.
func Register(r *provider.Registry, opts Options) {
	r.RegisterLoader(session.Kind, func() (provider.Provider, error) {
		return session.NewCLI(opts.CLIPath), nil
	})
	r.RegisterLoader(openai.Kind, func() (provider.Provider, error) {
		return openai.New(), nil
	})
}

// NewRegistry returns a provider registry with the built-ins registered.
func NewRegistry(opts Options) *provider.Registry {
	r := provider.NewRegistry()
	Register(r, opts)
	return r
}
