package provider_test

import (
	"errors"
	"testing"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(providertest.New("mock"))

	p, err := r.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Kind())
}

func TestGetUnknownProvider(t *testing.T) {
	r := provider.NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, provider.ErrProviderNotFound)
}

func TestLoadOnDemand(t *testing.T) {
	r := provider.NewRegistry()
	calls := 0
	r.RegisterLoader("lazy", func() (provider.Provider, error) {
		calls++
		return providertest.New("lazy"), nil
	})

	_, err := r.Get("lazy")
	require.ErrorIs(t, err, provider.ErrProviderNotFound)

	require.NoError(t, r.Load("lazy"))
	require.NoError(t, r.Load("lazy"))
	assert.Equal(t, 1, calls)

	_, err = r.Get("lazy")
	assert.NoError(t, err)
}

func TestLoadUnknownKindIsTolerated(t *testing.T) {
	r := provider.NewRegistry()
	assert.NoError(t, r.Load("missing"))
}

func TestLoadFailure(t *testing.T) {
	r := provider.NewRegistry()
	boom := errors.New("boom")
	r.RegisterLoader("bad", func() (provider.Provider, error) { return nil, boom })
	assert.ErrorIs(t, r.Load("bad"), boom)
}

func TestKindsSorted(t *testing.T) {
	r := provider.NewRegistry()
	r.Register(providertest.New("zeta"))
	r.RegisterLoader("alpha", func() (provider.Provider, error) { return providertest.New("alpha"), nil })
	assert.Equal(t, []string{"alpha", "zeta"}, r.Kinds())
}

func TestErrorClassification(t *testing.T) {
	err := provider.APIError("openai.handle_message", 429, "rate limited", nil)
	assert.ErrorIs(t, err, provider.ErrAPI)
	assert.ErrorIs(t, err, provider.ErrProvider)
	assert.NotErrorIs(t, err, provider.ErrAuth)

	code, ok := provider.StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, 429, code)
	assert.Contains(t, err.Error(), "status 429")
}
