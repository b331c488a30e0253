// Package daemon runs the orchestrator as a single long-lived local
// process serving the same HTTP handler on a Unix socket and on loopback
// TCP.
//
//	Run
//	 ├─► claim the PID file, refusing if it names a live process
//	 ├─► bind unix socket + 127.0.0.1:port
//	 ├─► serve both listeners (errgroup)
//	 │       until SIGTERM/SIGINT, ctx cancel, or RequestShutdown
//	 └─► cleanup: shut down all agents, remove PID file, remove socket
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/agentoven/orchestrator/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned by Run when another daemon owns the PID file.
var ErrAlreadyRunning = errors.New("daemon already running")

const defaultShutdownTimeout = 15 * time.Second

// Config locates the daemon's listeners and PID file.
type Config struct {
	SocketPath      string
	PIDPath         string
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// AgentShutdowner releases every agent during cleanup.
type AgentShutdowner interface {
	ShutdownAll(ctx context.Context) models.ShutdownReport
}

// Daemon owns the process-level lifecycle.
type Daemon struct {
	cfg    Config
	agents AgentShutdowner

	draining     atomic.Bool
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	ready        chan struct{}

	mu      sync.Mutex
	tcpAddr string
}

// New creates a daemon that releases agents through agents on exit.
func New(cfg Config, agents AgentShutdowner) *Daemon {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Daemon{
		cfg:        cfg,
		agents:     agents,
		shutdownCh: make(chan struct{}),
		ready:      make(chan struct{}),
	}
}

// RequestShutdown asks Run to stop. It returns immediately.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() {
		d.draining.Store(true)
		close(d.shutdownCh)
	})
}

// Draining reports whether shutdown has begun.
func (d *Daemon) Draining() bool { return d.draining.Load() }

// Ready is closed once the PID file is claimed and both listeners are bound.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// TCPAddr returns the bound TCP address after Ready.
func (d *Daemon) TCPAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tcpAddr
}

// Run serves handler until a signal, ctx cancellation, or RequestShutdown.
// Cleanup always runs once the listeners were bound.
func (d *Daemon) Run(ctx context.Context, handler http.Handler) error {
	// The PID file is claimed before the socket path is touched, so a
	// second instance never removes a live daemon's socket.
	if err := ClaimPIDFile(d.cfg.PIDPath); err != nil {
		return err
	}

	listeners, err := d.listen()
	if err != nil {
		_ = RemovePIDFile(d.cfg.PIDPath)
		return err
	}
	defer d.cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	servers := make([]*http.Server, len(listeners))
	for i, ln := range listeners {
		ln := ln
		srv := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		servers[i] = srv
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		reason := "request"
		select {
		case <-gctx.Done():
			reason = "signal"
		case <-d.shutdownCh:
		}
		d.draining.Store(true)
		log.Info().Str("reason", reason).Msg("daemon.signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("forcing listener closed")
				_ = srv.Close()
			}
		}
		return nil
	})

	log.Info().
		Str("socket", d.cfg.SocketPath).
		Str("tcp", d.TCPAddr()).
		Int("pid", os.Getpid()).
		Msg("daemon.start")
	close(d.ready)

	return g.Wait()
}

func (d *Daemon) listen() ([]net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := RemoveSocketFile(d.cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	unixLn, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", d.cfg.SocketPath, err)
	}
	_ = os.Chmod(d.cfg.SocketPath, 0o600)

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	tcpLn, err := net.Listen("tcp", addr)
	if err != nil {
		unixLn.Close()
		_ = RemoveSocketFile(d.cfg.SocketPath)
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	d.mu.Lock()
	d.tcpAddr = tcpLn.Addr().String()
	d.mu.Unlock()
	return []net.Listener{unixLn, tcpLn}, nil
}

// cleanup releases agents, then removes the PID file, then the socket.
func (d *Daemon) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()

	report := d.agents.ShutdownAll(ctx)
	for name, reason := range report.Failed {
		log.Warn().Str("agent", name).Str("error", reason).Msg("agent failed to shut down")
	}
	if err := RemovePIDFile(d.cfg.PIDPath); err != nil {
		log.Warn().Err(err).Msg("remove pid file")
	}
	if err := RemoveSocketFile(d.cfg.SocketPath); err != nil {
		log.Warn().Err(err).Msg("remove socket file")
	}
	log.Info().Int("agents_stopped", len(report.Succeeded)).Msg("daemon.stop")
}
