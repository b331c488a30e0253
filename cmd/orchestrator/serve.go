package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/agentoven/orchestrator/internal/client"
	"github.com/agentoven/orchestrator/internal/config"
	"github.com/agentoven/orchestrator/internal/daemon"
	"github.com/agentoven/orchestrator/pkg/server"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func cmdServe(cfg *config.Config, args []string, out io.Writer) error {
	var port int
	var stop, status bool

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.IntVar(&port, "port", cfg.Daemon.Port, "loopback TCP port")
	fs.BoolVar(&stop, "stop", false, "stop the running daemon")
	fs.BoolVar(&status, "status", false, "report whether the daemon is running")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Daemon.Port = port

	switch {
	case stop:
		return serveStop(cfg, out)
	case status:
		return serveStatus(cfg, out)
	}

	log.Info().Str("version", server.Version).Msg("🤖 Orchestrator daemon starting...")
	ctx := context.Background()
	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize daemon: %w", err)
	}

	go func() {
		<-srv.Daemon.Ready()
		log.Info().
			Str("socket", cfg.Daemon.SocketPath).
			Str("tcp", srv.Daemon.TCPAddr()).
			Msg("🔥 Orchestrator is ready")
	}()

	if err := srv.Run(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("%w; use 'orchestrator serve --stop' first", err)
		}
		return err
	}
	log.Info().Msg("🛑 Orchestrator stopped")
	return nil
}

func serveStop(cfg *config.Config, out io.Writer) error {
	pid, err := daemon.Stop(cfg.Daemon.PIDPath)
	if errors.Is(err, daemon.ErrNotRunning) {
		color.New(color.FgYellow).Fprintln(out, "Daemon is not running")
		return nil
	}
	if err != nil {
		return err
	}

	// Wait for the daemon to release its PID file.
	deadline := time.Now().Add(20 * time.Second)
	for daemon.IsRunning(cfg.Daemon.PIDPath) {
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon (pid %d) did not exit", pid)
		}
		time.Sleep(100 * time.Millisecond)
	}
	color.New(color.FgGreen).Fprintf(out, "Stopped daemon (pid %d)\n", pid)
	return nil
}

func serveStatus(cfg *config.Config, out io.Writer) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	pid, ok := daemon.ReadPIDFile(cfg.Daemon.PIDPath)
	if !ok || !daemon.IsRunning(cfg.Daemon.PIDPath) {
		yellow.Fprintf(out, "  Daemon:  ")
		fmt.Fprintln(out, "not running")
		return nil
	}
	green.Fprintf(out, "  Daemon:  ")
	fmt.Fprintf(out, "running (pid %d)\n", pid)

	c := client.New(cfg.Daemon.SocketPath, fmt.Sprintf("http://%s:%d", cfg.Daemon.Host, cfg.Daemon.Port))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := c.Health(ctx)
	if err != nil {
		yellow.Fprintf(out, "  API:     ")
		color.New(color.FgRed).Fprintf(out, "UNREACHABLE (%v)\n", err)
		return nil
	}
	green.Fprintf(out, "  API:     ")
	fmt.Fprintf(out, "%s via %s, %d agent(s)\n", health.Status, c.Transport(), health.Agents)
	return nil
}
