package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend errors, before translation into provider error kinds.
var (
	ErrCLINotFound = errors.New("agent CLI not found")
	ErrConnection  = errors.New("agent CLI connection lost")
)

// ProcessError reports an agent CLI that exited unsuccessfully.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent CLI exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("agent CLI exited with code %d: %s", e.ExitCode, e.Stderr)
}

// DecodeError reports an output line that is not a valid event.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	line := e.Line
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return fmt.Sprintf("decode event %q: %v", line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options configures one agent CLI session.
type Options struct {
	CLIPath        string
	SystemPrompt   string
	Model          string
	AllowedTools   []string
	PermissionMode string
	SettingSources []string
	Cwd            string
	Env            []string
}

func (o Options) args(streamInput bool) []string {
	args := []string{"--output-format", "stream-json", "--verbose"}
	if streamInput {
		args = append(args, "--input-format", "stream-json")
	}
	args = append(args, "--print")
	if o.SystemPrompt != "" {
		args = append(args, "--system-prompt", o.SystemPrompt)
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if o.PermissionMode != "" {
		args = append(args, "--permission-mode", o.PermissionMode)
	}
	if len(o.SettingSources) > 0 {
		args = append(args, "--setting-sources", strings.Join(o.SettingSources, ","))
	}
	return args
}

// Events is a finite sequence of CLI events. Next returns io.EOF at the end.
type Events interface {
	Next() (Event, error)
	Close() error
}

// Client is a persistent multi-turn session.
type Client interface {
	Connect(ctx context.Context) error
	Query(ctx context.Context, prompt string) error
	// Receive yields the events of the current turn, ending after the
	// result event.
	Receive() Events
	Disconnect() error
}

// Backend launches agent CLI sessions.
type Backend interface {
	// Query runs prompt in a one-shot process scoped to the returned Events.
	Query(ctx context.Context, prompt string, opts Options) (Events, error)
	NewClient(opts Options) Client
	// Available reports whether the CLI binary can be found.
	Available(opts Options) bool
}
