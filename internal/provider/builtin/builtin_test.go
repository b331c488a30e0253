package builtin_test

import (
	"testing"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/builtin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinKindsLoadable(t *testing.T) {
	r := builtin.NewRegistry(builtin.Options{})
	assert.Equal(t, []string{"openai", "sdk"}, r.Kinds())

	for _, kind := range []string{"openai", "sdk"} {
		_, err := r.Get(kind)
		assert.ErrorIs(t, err, provider.ErrProviderNotFound, "%s should load lazily", kind)

		require.NoError(t, r.Load(kind))
		p, err := r.Get(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, p.Kind())
	}
}
