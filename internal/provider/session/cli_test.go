package session_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentoven/orchestrator/internal/provider"
	"github.com/agentoven/orchestrator/internal/provider/session"
	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript installs an executable shell script standing in for the
// agent CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

const oneShotScript = `printf '%s\n' "$@" > "$ARGS_FILE"
echo '{"type":"system","subtype":"init","session_id":"s1"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hello"},{"type":"tool_use","id":"t1","name":"Read","input":{"path":"a.go"}}]}}'
echo '{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"body"}]}}'
echo '{"type":"result","subtype":"success","result":"done","session_id":"s1","num_turns":1}'
`

func TestCLIQuery(t *testing.T) {
	cli := writeScript(t, oneShotScript)
	argsFile := filepath.Join(t.TempDir(), "args")
	b := session.NewCLIBackend(cli)

	events, err := b.Query(context.Background(), "fix the bug", session.Options{
		Model:          "sonnet",
		AllowedTools:   []string{"Read", "Edit"},
		PermissionMode: "acceptEdits",
		Env:            []string{"ARGS_FILE=" + argsFile},
	})
	require.NoError(t, err)
	defer events.Close()

	var types []string
	for {
		ev, err := events.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"system", "assistant", "user", "result"}, types)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Contains(t, args, "stream-json")
	assert.Contains(t, args, "--print")
	assert.Contains(t, args, "Read,Edit")
	assert.Contains(t, args, "sonnet")
	assert.Equal(t, "fix the bug", args[len(args)-1])
}

func TestCLIProcessExitError(t *testing.T) {
	cli := writeScript(t, "echo 'invalid api key' >&2\nexit 3\n")
	b := session.NewCLIBackend(cli)

	events, err := b.Query(context.Background(), "hi", session.Options{})
	require.NoError(t, err)
	defer events.Close()

	_, err = events.Next()
	var pe *session.ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.ExitCode)
	assert.Contains(t, pe.Stderr, "invalid api key")
}

func TestCLIMalformedOutput(t *testing.T) {
	cli := writeScript(t, "echo 'not json'\n")
	events, err := session.NewCLIBackend(cli).Query(context.Background(), "hi", session.Options{})
	require.NoError(t, err)
	defer events.Close()

	_, err = events.Next()
	var de *session.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestCLIMissingBinary(t *testing.T) {
	b := session.NewCLIBackend(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.False(t, b.Available(session.Options{}))

	_, err := b.Query(context.Background(), "hi", session.Options{})
	assert.ErrorIs(t, err, session.ErrCLINotFound)

	a, err := session.New(b).CreateAgent(context.Background(), models.AgentConfig{Name: "coder"})
	require.NoError(t, err)
	_, err = provider.Collect(a.HandleMessage(context.Background(), human("hi")))
	assert.ErrorIs(t, err, provider.ErrAuth)
}

const multiTurnScript = `n=0
while IFS= read -r line; do
  n=$((n+1))
  echo "{\"type\":\"assistant\",\"message\":{\"role\":\"assistant\",\"content\":[{\"type\":\"text\",\"text\":\"turn $n\"}]}}"
  echo "{\"type\":\"result\",\"subtype\":\"success\",\"result\":\"ok $n\"}"
done
`

func TestCLIMultiTurnAgent(t *testing.T) {
	cli := writeScript(t, multiTurnScript)
	a, err := session.NewCLI(cli).CreateAgent(context.Background(), models.AgentConfig{
		Name:        "coder",
		Credentials: map[string]any{"mode": "client"},
	})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	for i, want := range []string{"turn 1", "turn 2"} {
		out, err := provider.Collect(a.HandleMessage(context.Background(), human("go")))
		require.NoError(t, err, "turn %d", i+1)
		require.Len(t, out, 2)
		assert.Equal(t, want, out[0].Content)
		assert.Equal(t, models.MessageTypeChat, out[1].Type)
	}

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, models.AgentStateTerminated, a.State())
}
