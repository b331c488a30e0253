package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/providertest"
	"github.com/agentoven/orchestrator/internal/registry"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, providers ...*providertest.Provider) *registry.Registry {
	t.Helper()
	pr := provider.NewRegistry()
	for _, p := range providers {
		pr.Register(p)
	}
	return registry.New(pr)
}

func cfg(name, prov string) models.AgentConfig {
	return models.AgentConfig{Name: name, AgentType: "sdk", Provider: prov}
}

// ─── Spawn ───────────────────────────────────────────────────

func TestSpawnAndGet(t *testing.T) {
	r := newTestRegistry(t, providertest.New("mock"))
	ctx := context.Background()

	agent, err := r.Spawn(ctx, cfg("alice", "mock"))
	require.NoError(t, err)
	assert.Equal(t, "alice", agent.Name())

	got, err := r.Get("alice")
	require.NoError(t, err)
	assert.Same(t, agent, got)
	assert.True(t, r.Has("alice"))

	c, err := r.Config("alice")
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Provider)
}

func TestSpawnDuplicateName(t *testing.T) {
	r := newTestRegistry(t, providertest.New("mock"))
	ctx := context.Background()

	_, err := r.Spawn(ctx, cfg("alice", "mock"))
	require.NoError(t, err)

	_, err = r.Spawn(ctx, cfg("alice", "mock"))
	assert.ErrorIs(t, err, registry.ErrAgentExists)
	assert.Equal(t, 1, r.Len())
}

func TestSpawnUnknownProvider(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Spawn(context.Background(), cfg("alice", "ghost"))
	assert.ErrorIs(t, err, provider.ErrProviderNotFound)
	assert.False(t, r.Has("alice"))
}

func TestSpawnFailureLeavesRegistryUnchanged(t *testing.T) {
	p := providertest.New("mock")
	authErr := provider.AuthError("mock.create_agent", "bad key", nil)
	p.CreateErr = authErr
	r := newTestRegistry(t, p)

	_, err := r.Spawn(context.Background(), cfg("alice", "mock"))
	assert.ErrorIs(t, err, provider.ErrAuth)
	assert.Same(t, authErr, err, "provider errors are returned unmodified")
	assert.False(t, r.Has("alice"))
	assert.Equal(t, 0, r.Len())

	// The name is free again once the failed spawn returned.
	p.CreateErr = nil
	_, err = r.Spawn(context.Background(), cfg("alice", "mock"))
	assert.NoError(t, err)
}

func TestConcurrentSpawnSameName(t *testing.T) {
	p := providertest.New("mock")
	p.Gate = make(chan struct{})
	r := newTestRegistry(t, p)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Spawn(context.Background(), cfg("alice", "mock"))
			errs <- err
		}()
	}
	close(p.Gate)
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, registry.ErrAgentExists):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)
	assert.Equal(t, 1, r.Len())
}

// ─── Lookup & List ───────────────────────────────────────────

func TestGetMissing(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get("nobody")
	assert.ErrorIs(t, err, registry.ErrAgentNotFound)
	_, err = r.Info("nobody")
	assert.ErrorIs(t, err, registry.ErrAgentNotFound)
}

func TestListFilters(t *testing.T) {
	a, b := providertest.New("pa"), providertest.New("pb")
	r := newTestRegistry(t, a, b)
	ctx := context.Background()

	for _, c := range []models.AgentConfig{cfg("one", "pa"), cfg("two", "pb"), cfg("three", "pa")} {
		_, err := r.Spawn(ctx, c)
		require.NoError(t, err)
	}
	a.Created()[1].SetState(models.AgentStateFailed) // "three"

	names := func(infos []models.AgentInfo) []string {
		out := []string{}
		for _, i := range infos {
			out = append(out, i.Name)
		}
		return out
	}

	assert.Equal(t, []string{"one", "two", "three"}, names(r.List(models.AgentFilter{})))
	assert.Equal(t, []string{"one", "three"}, names(r.List(models.AgentFilter{Provider: "pa"})))
	assert.Equal(t, []string{"three"}, names(r.List(models.AgentFilter{State: models.AgentStateFailed})))
	assert.Equal(t, []string{"one"}, names(r.List(models.AgentFilter{State: models.AgentStateIdle, Provider: "pa"})))
	assert.Empty(t, r.List(models.AgentFilter{State: models.AgentStateFailed, Provider: "pb"}))
}

// ─── Shutdown ────────────────────────────────────────────────

func TestShutdownOne(t *testing.T) {
	p := providertest.New("mock")
	r := newTestRegistry(t, p)
	ctx := context.Background()

	_, err := r.Spawn(ctx, cfg("alice", "mock"))
	require.NoError(t, err)

	require.NoError(t, r.ShutdownOne(ctx, "alice"))
	assert.False(t, r.Has("alice"))
	assert.Equal(t, models.AgentStateTerminated, p.Created()[0].State())

	assert.ErrorIs(t, r.ShutdownOne(ctx, "alice"), registry.ErrAgentNotFound)
}

func TestShutdownOneRemovesOnFailure(t *testing.T) {
	p := providertest.New("mock")
	boom := errors.New("disconnect failed")
	p.ShutdownErr = map[string]error{"alice": boom}
	r := newTestRegistry(t, p)
	ctx := context.Background()

	_, err := r.Spawn(ctx, cfg("alice", "mock"))
	require.NoError(t, err)

	err = r.ShutdownOne(ctx, "alice")
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Has("alice"))

	_, err = r.Spawn(ctx, cfg("alice", "mock"))
	assert.NoError(t, err, "name should be reusable after a failed shutdown")
}

func TestShutdownAllPartialFailure(t *testing.T) {
	p := providertest.New("mock")
	p.ShutdownErr = map[string]error{"b": errors.New("stuck")}
	r := newTestRegistry(t, p)
	ctx := context.Background()

	for _, n := range []string{"a", "b", "c"} {
		_, err := r.Spawn(ctx, cfg(n, "mock"))
		require.NoError(t, err)
	}

	report := r.ShutdownAll(ctx)
	assert.Equal(t, []string{"a", "c"}, report.Succeeded)
	require.Contains(t, report.Failed, "b")
	assert.Contains(t, report.Failed["b"], "stuck")
	assert.Equal(t, 0, r.Len())
}

func TestShutdownAllEmpty(t *testing.T) {
	r := newTestRegistry(t)
	report := r.ShutdownAll(context.Background())
	assert.Empty(t, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.NotNil(t, report.Failed)
}
