package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agentoven/orchestrator/internal/client"
	"github.com/agentoven/orchestrator/pkg/models"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

// cli runs the client-side commands against a daemon.
type cli struct {
	out    io.Writer
	cwd    string
	client *client.Client
}

// addAgentFlags binds spawn flags to cfg. The returned func copies
// --credential pairs into cfg after parsing.
func addAgentFlags(fs *pflag.FlagSet, cfg *models.AgentConfig) func() {
	fs.StringVar(&cfg.AgentType, "type", "", "agent type label")
	fs.StringVar(&cfg.Provider, "provider", "", "provider kind (default from config)")
	fs.StringVar(&cfg.Model, "model", "", "model name")
	fs.StringVar(&cfg.Instructions, "instructions", "", "system prompt")
	fs.StringVar(&cfg.Cwd, "cwd", "", "working directory (default: current)")
	fs.StringSliceVar(&cfg.AllowedTools, "allowed-tool", nil, "tool the agent may use (repeatable)")
	fs.StringVar(&cfg.PermissionMode, "permission-mode", "", "session permission mode")
	fs.StringSliceVar(&cfg.SettingSources, "setting-source", nil, "session setting source (repeatable)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "API base URL")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key")
	creds := fs.StringToString("credential", nil, "provider credential key=value, e.g. mode=client (repeatable)")
	return func() {
		if len(*creds) == 0 {
			return
		}
		cfg.Credentials = make(map[string]any, len(*creds))
		for k, v := range *creds {
			cfg.Credentials[k] = v
		}
	}
}

// parse parses args and requires at least want positional arguments.
func parse(fs *pflag.FlagSet, args []string, want int, usage string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < want {
		return nil, fmt.Errorf("usage: orchestrator %s", usage)
	}
	return fs.Args(), nil
}

func (c *cli) spawn(args []string) error {
	var cfg models.AgentConfig
	fs := pflag.NewFlagSet("spawn", pflag.ContinueOnError)
	applyCreds := addAgentFlags(fs, &cfg)
	pos, err := parse(fs, args, 1, "spawn <name> [flags]")
	if err != nil {
		return err
	}
	applyCreds()
	cfg.Name = pos[0]
	if cfg.Cwd == "" {
		cfg.Cwd = c.cwd
	}

	info, err := c.client.Spawn(context.Background(), cfg)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(c.out, "Spawned %s ", info.Name)
	fmt.Fprintf(c.out, "(provider %s, %s)\n", info.Provider, info.State)
	return nil
}

func (c *cli) list(args []string) error {
	var filter models.AgentFilter
	var state string
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.StringVar(&state, "state", "", "only agents in this state")
	fs.StringVar(&filter.Provider, "provider", "", "only agents of this provider")
	if _, err := parse(fs, args, 0, "list [--state S] [--provider P]"); err != nil {
		return err
	}
	filter.State = models.AgentState(state)

	infos, err := c.client.List(context.Background(), filter)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(c.out, "No agents")
		return nil
	}

	cyan := color.New(color.FgCyan)
	cyan.Fprintf(c.out, "  %-20s %-10s %-12s %s\n", "NAME", "PROVIDER", "STATE", "TYPE")
	for _, info := range infos {
		fmt.Fprintf(c.out, "  %-20s %-10s ", info.Name, info.Provider)
		stateColor(info.State).Fprintf(c.out, "%-12s", info.State)
		fmt.Fprintf(c.out, " %s\n", info.AgentType)
	}
	return nil
}

func (c *cli) message(args []string) error {
	fs := pflag.NewFlagSet("message", pflag.ContinueOnError)
	pos, err := parse(fs, args, 2, "message <name> <text>")
	if err != nil {
		return err
	}
	msgs, err := c.client.Send(context.Background(), pos[0], strings.Join(pos[1:], " "))
	if err != nil {
		return err
	}
	c.printMessages(msgs)
	return nil
}

func (c *cli) history(args []string) error {
	var limit int
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	fs.IntVar(&limit, "limit", 0, "show only the last N messages")
	pos, err := parse(fs, args, 1, "history <name> [--limit N]")
	if err != nil {
		return err
	}
	msgs, err := c.client.History(context.Background(), pos[0], limit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(c.out, "No messages")
		return nil
	}
	c.printMessages(msgs)
	return nil
}

func (c *cli) task(args []string) error {
	var cfg models.AgentConfig
	fs := pflag.NewFlagSet("task", pflag.ContinueOnError)
	applyCreds := addAgentFlags(fs, &cfg)
	pos, err := parse(fs, args, 2, "task <name> <prompt> [flags]")
	if err != nil {
		return err
	}
	applyCreds()
	cfg.Name = pos[0]
	if cfg.Cwd == "" {
		cfg.Cwd = c.cwd
	}

	msgs, err := c.client.Task(context.Background(), cfg, strings.Join(pos[1:], " "))
	if err != nil {
		return err
	}
	c.printMessages(msgs)
	return nil
}

func (c *cli) shutdown(args []string) error {
	var all bool
	fs := pflag.NewFlagSet("shutdown", pflag.ContinueOnError)
	fs.BoolVar(&all, "all", false, "shut down every agent")
	pos, err := parse(fs, args, 0, "shutdown <name> | --all")
	if err != nil {
		return err
	}
	ctx := context.Background()
	green := color.New(color.FgGreen)

	if all {
		report, err := c.client.ShutdownAll(ctx)
		if err != nil {
			return err
		}
		for _, name := range report.Succeeded {
			green.Fprintf(c.out, "Shut down %s\n", name)
		}
		for name, reason := range report.Failed {
			color.New(color.FgRed).Fprintf(c.out, "Failed to shut down %s: %s\n", name, reason)
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d agent(s) failed to shut down", len(report.Failed))
		}
		return nil
	}

	if len(pos) != 1 {
		return errors.New("usage: orchestrator shutdown <name> | --all")
	}
	if err := c.client.Shutdown(ctx, pos[0]); err != nil {
		return err
	}
	green.Fprintf(c.out, "Shut down %s\n", pos[0])
	return nil
}

func (c *cli) health(args []string) error {
	fs := pflag.NewFlagSet("health", pflag.ContinueOnError)
	if _, err := parse(fs, args, 0, "health"); err != nil {
		return err
	}
	h, err := c.client.Health(context.Background())
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(c.out, "%s ", h.Status)
	fmt.Fprintf(c.out, "(%d agent(s), via %s)\n", h.Agents, c.client.Transport())
	return nil
}

func (c *cli) providers(args []string) error {
	fs := pflag.NewFlagSet("providers", pflag.ContinueOnError)
	if _, err := parse(fs, args, 0, "providers"); err != nil {
		return err
	}
	kinds, err := c.client.Providers(context.Background())
	if err != nil {
		return err
	}
	for _, k := range kinds {
		fmt.Fprintln(c.out, k)
	}
	return nil
}

func (c *cli) printMessages(msgs []models.Message) {
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint, color.Italic)

	for _, m := range msgs {
		if m.Type == models.MessageTypeSystem {
			dim.Fprintf(c.out, "[%s] %s\n", m.Sender, m.Content)
			continue
		}
		cyan.Fprintf(c.out, "%s: ", m.Sender)
		fmt.Fprintln(c.out, m.Content)
	}
}

func stateColor(s models.AgentState) *color.Color {
	switch s {
	case models.AgentStateIdle:
		return color.New(color.FgGreen)
	case models.AgentStateProcessing, models.AgentStateRestarting:
		return color.New(color.FgYellow)
	case models.AgentStateFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.Faint)
	}
}
