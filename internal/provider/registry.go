package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Loader instantiates a provider the first time its kind is requested.
type Loader func() (Provider, error)

// Registry maps provider kinds to instances. One Registry is built per
// process entry point and passed to the components that need it.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	loaders   map[string]Loader
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		loaders:   make(map[string]Loader),
	}
}

// Register adds or replaces a provider under its own kind.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind()] = p
	log.Debug().Str("provider", p.Kind()).Msg("provider registered")
}

// RegisterLoader makes kind loadable on demand without instantiating it.
func (r *Registry) RegisterLoader(kind string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[kind] = l
}

// Load instantiates kind from its loader if it is not registered yet.
// Kinds with no loader are ignored so that Get reports them as missing.
func (r *Registry) Load(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[kind]; ok {
		return nil
	}
	l, ok := r.loaders[kind]
	if !ok {
		return nil
	}
	p, err := l()
	if err != nil {
		return fmt.Errorf("load provider %q: %w", kind, err)
	}
	r.providers[kind] = p
	log.Debug().Str("provider", kind).Msg("provider loaded")
	return nil
}

// Get returns the provider registered under kind.
func (r *Registry) Get(kind string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, kind)
	}
	return p, nil
}

// Kinds lists registered and loadable kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.providers)+len(r.loaders))
	for k := range r.providers {
		seen[k] = struct{}{}
	}
	for k := range r.loaders {
		seen[k] = struct{}{}
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
