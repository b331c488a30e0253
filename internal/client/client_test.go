package client_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentoven/orchestrator/internal/api"
	"github.com/agentoven/orchestrator/internal/client"
	"github.com/agentoven/orchestrator/internal/engine"
	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/providertest"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type control struct{ stopped bool }

func (c *control) RequestShutdown() { c.stopped = true }
func (c *control) Draining() bool   { return false }

func newHandler() (http.Handler, *control) {
	pr := provider.NewRegistry()
	pr.Register(providertest.New("mock"))
	ctl := &control{}
	return api.NewRouter(engine.New(pr, engine.Defaults{Provider: "mock"}), ctl), ctl
}

func TestClientOverTCP(t *testing.T) {
	h, ctl := newHandler()
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := client.New(filepath.Join(t.TempDir(), "missing.sock"), srv.URL)
	assert.Equal(t, "tcp", c.Transport())
	ctx := context.Background()

	info, err := c.Spawn(ctx, models.AgentConfig{Name: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "mock", info.Provider)

	_, err = c.Spawn(ctx, models.AgentConfig{Name: "alice"})
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.Contains(t, se.Message, "alice")

	msgs, err := c.Send(ctx, "alice", "hi")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "echo: hi", msgs[0].Content)

	hist, err := c.History(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	infos, err := c.List(ctx, models.AgentFilter{State: models.AgentStateIdle})
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	h2, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h2.Agents)

	kinds, err := c.Providers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mock"}, kinds)

	require.NoError(t, c.Shutdown(ctx, "alice"))
	_, err = c.Get(ctx, "alice")
	assert.ErrorIs(t, err, client.ErrAgentNotFound)

	msgs, err = c.Task(ctx, models.AgentConfig{Name: "job"}, "do it")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	report, err := c.ShutdownAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Succeeded)

	require.NoError(t, c.StopDaemon(ctx))
	assert.True(t, ctl.stopped)
}

func TestClientPrefersSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "orch")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "d.sock")

	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	h, _ := newHandler()
	srv := &http.Server{Handler: h}
	go srv.Serve(ln)
	defer srv.Close()

	c := client.New(sock, "http://127.0.0.1:1")
	assert.Equal(t, "unix", c.Transport())

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}

func TestClientDaemonNotRunning(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := client.New("", "http://"+addr)
	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, client.ErrDaemonNotRunning)
}
