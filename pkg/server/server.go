// Package server composes the orchestrator daemon from its parts.
//
// This package lives in pkg/ (not internal/) so other binaries can embed
// the daemon and wrap its handler.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	err = srv.Run(ctx)
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/agentoven/orchestrator/internal/api"
	"github.com/agentoven/orchestrator/internal/config"
	"github.com/agentoven/orchestrator/internal/daemon"
	"github.com/agentoven/orchestrator/internal/engine"
	"github.com/agentoven/orchestrator/internal/provider/builtin"
	"github.com/agentoven/orchestrator/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Version is reported in telemetry resources and by the CLI.
const Version = "0.1.0"

// Server holds an initialized, not yet running, daemon.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine owns the agents and their histories.
	Engine *engine.Engine

	// Daemon serves Handler and owns the PID file and socket.
	Daemon *daemon.Daemon

	Config *config.Config

	// ShutdownFunc flushes telemetry. Run calls it on exit.
	ShutdownFunc func(context.Context) error
}

// New loads configuration for the working directory and builds a Server.
func New(ctx context.Context) (*Server, error) {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds a Server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	providers := builtin.NewRegistry(builtin.Options{CLIPath: cfg.Defaults.CLIPath})
	log.Info().Strs("providers", providers.Kinds()).Msg("✅ Providers registered")

	eng := engine.New(providers, engine.Defaults{
		Provider: cfg.Defaults.Provider,
		Model:    cfg.Defaults.Model,
		Cwd:      cfg.Defaults.Cwd,
	})

	d := daemon.New(daemon.Config{
		SocketPath: cfg.Daemon.SocketPath,
		PIDPath:    cfg.Daemon.PIDPath,
		Host:       cfg.Daemon.Host,
		Port:       cfg.Daemon.Port,
	}, eng)

	return &Server{
		Handler:      api.NewRouter(eng, d),
		Engine:       eng,
		Daemon:       d,
		Config:       cfg,
		ShutdownFunc: shutdown,
	}, nil
}

// Run serves until a signal, ctx cancellation, or a shutdown request.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.ShutdownFunc(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("flush telemetry")
		}
	}()
	return s.Daemon.Run(ctx, s.Handler)
}
