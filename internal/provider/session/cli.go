package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultCLI  = "claude"
	stopGrace   = 3 * time.Second
	stderrLines = 50
	maxLineSize = 10 * 1024 * 1024
)

// CLIBackend runs the agent CLI as a subprocess speaking stream-json.
type CLIBackend struct {
	path string
}

// NewCLIBackend creates a backend for the CLI at path. An empty path
// falls back to $CLAUDE_BINARY, then "claude" on PATH.
func NewCLIBackend(path string) *CLIBackend {
	return &CLIBackend{path: path}
}

func (b *CLIBackend) binary(opts Options) (string, error) {
	name := opts.CLIPath
	if name == "" {
		name = b.path
	}
	if name == "" {
		name = os.Getenv("CLAUDE_BINARY")
	}
	if name == "" {
		name = defaultCLI
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCLINotFound, name, err)
	}
	return p, nil
}

func (b *CLIBackend) Available(opts Options) bool {
	_, err := b.binary(opts)
	return err == nil
}

func (b *CLIBackend) Query(ctx context.Context, prompt string, opts Options) (Events, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bin, err := b.binary(opts)
	if err != nil {
		return nil, err
	}
	args := append(opts.args(false), "--", prompt)
	p, err := startProcess(bin, args, opts, false)
	if err != nil {
		return nil, err
	}
	return &oneShotEvents{p: p}, nil
}

func (b *CLIBackend) NewClient(opts Options) Client {
	return &cliClient{backend: b, opts: opts}
}

// ── Process ──────────────────────────────────────────────────

type process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *io.PipeReader
	scanner *bufio.Scanner
	stderr  *stderrBuffer

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopped  atomic.Bool
}

func startProcess(bin string, args []string, opts Options, withStdin bool) (*process, error) {
	cmd := exec.Command(bin, args...)
	cmd.Dir = opts.Cwd
	cmd.Env = append(os.Environ(), opts.Env...)

	// Wait blocks until stdout is fully consumed through the pipe, so no
	// output is lost when the process exits before it is read.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	stderr := newStderrBuffer(stderrLines)
	cmd.Stderr = stderr

	var stdin io.WriteCloser
	if withStdin {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("%w: stdin pipe: %v", ErrConnection, err)
		}
	}

	if err := cmd.Start(); err != nil {
		pw.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrCLINotFound, err)
		}
		return nil, fmt.Errorf("%w: start: %v", ErrConnection, err)
	}
	stderr.setPID(cmd.Process.Pid)

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	p := &process{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  pr,
		scanner: scanner,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		pw.Close()
		close(p.done)
	}()

	log.Debug().
		Str("cli", bin).
		Int("pid", cmd.Process.Pid).
		Bool("multi_turn", withStdin).
		Msg("agent CLI started")
	return p, nil
}

func (p *process) next() (Event, error) {
	for p.scanner.Scan() {
		line := bytes.TrimSpace(p.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return ParseEvent(line)
	}
	if err := p.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	<-p.done
	return Event{}, p.exitError()
}

func (p *process) exitError() error {
	if p.waitErr == nil {
		return io.EOF
	}
	if p.stopped.Load() {
		return fmt.Errorf("%w: process stopped", ErrConnection)
	}
	var ee *exec.ExitError
	if errors.As(p.waitErr, &ee) {
		return &ProcessError{ExitCode: ee.ExitCode(), Stderr: p.stderr.Tail()}
	}
	return fmt.Errorf("%w: %v", ErrConnection, p.waitErr)
}

func (p *process) write(line []byte) error {
	if p.stdin == nil {
		return fmt.Errorf("%w: stdin not attached", ErrConnection)
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnection, err)
	}
	return nil
}

// stop interrupts the process, killing it if it has not exited after
// stopGrace.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		p.stopped.Store(true)

		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		_ = p.stdout.Close()

		log.Debug().Int("pid", p.cmd.Process.Pid).Msg("stopping agent CLI")
		_ = p.cmd.Process.Signal(os.Interrupt)
		select {
		case <-p.done:
		case <-time.After(stopGrace):
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	})
}

// ── One-shot ─────────────────────────────────────────────────

type oneShotEvents struct {
	p *process
}

func (e *oneShotEvents) Next() (Event, error) { return e.p.next() }

func (e *oneShotEvents) Close() error {
	e.p.stop()
	return nil
}

// ── Multi-turn ───────────────────────────────────────────────

type userInput struct {
	Type    string       `json:"type"`
	Message inputMessage `json:"message"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cliClient struct {
	backend *CLIBackend
	opts    Options

	mu sync.Mutex
	p  *process
}

func (c *cliClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.p != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bin, err := c.backend.binary(c.opts)
	if err != nil {
		return err
	}
	p, err := startProcess(bin, c.opts.args(true), c.opts, true)
	if err != nil {
		return err
	}
	c.p = p
	return nil
}

func (c *cliClient) proc() (*process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.p == nil {
		return nil, fmt.Errorf("%w: not connected", ErrConnection)
	}
	return c.p, nil
}

func (c *cliClient) Query(ctx context.Context, prompt string) error {
	p, err := c.proc()
	if err != nil {
		return err
	}
	line, err := json.Marshal(userInput{
		Type:    "user",
		Message: inputMessage{Role: "user", Content: prompt},
	})
	if err != nil {
		return err
	}
	return p.write(line)
}

func (c *cliClient) Receive() Events {
	p, err := c.proc()
	return &turnEvents{client: c, p: p, err: err}
}

func (c *cliClient) Disconnect() error {
	c.mu.Lock()
	p := c.p
	c.p = nil
	c.mu.Unlock()

	if p != nil {
		p.stop()
	}
	return nil
}

// turnEvents reads one turn from a persistent session. Closing it before
// the result event disconnects the session, since the process would
// otherwise still be mid-response.
type turnEvents struct {
	client   *cliClient
	p        *process
	err      error
	finished atomic.Bool
	once     sync.Once
}

func (e *turnEvents) Next() (Event, error) {
	if e.err != nil {
		return Event{}, e.err
	}
	if e.finished.Load() {
		return Event{}, io.EOF
	}
	ev, err := e.p.next()
	if err == io.EOF {
		return Event{}, fmt.Errorf("%w: session ended mid-turn", ErrConnection)
	}
	if err != nil {
		return Event{}, err
	}
	if ev.Type == EventResult {
		e.finished.Store(true)
	}
	return ev, nil
}

func (e *turnEvents) Close() error {
	e.once.Do(func() {
		if e.p != nil && !e.finished.Load() {
			_ = e.client.Disconnect()
		}
	})
	return nil
}
