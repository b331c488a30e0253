// orchestrator runs the local agent-orchestration daemon and talks to it.
//
//	orchestrator serve                 run the daemon in the foreground
//	orchestrator spawn alice --provider sdk
//	orchestrator message alice "summarize the repo"
//	orchestrator shutdown --all
//
// Every command except serve is a thin client of the daemon API, reached
// over the Unix socket when present and loopback TCP otherwise.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/agentoven/orchestrator/internal/client"
	"github.com/agentoven/orchestrator/internal/config"
	"github.com/agentoven/orchestrator/internal/logging"
	"github.com/agentoven/orchestrator/pkg/server"

	"github.com/fatih/color"
)

const banner = `
  ┌─┐┬─┐┌─┐┬ ┬┌─┐┌─┐┌┬┐┬─┐┌─┐┌┬┐┌─┐┬─┐
  │ │├┬┘│  ├─┤├┤ └─┐ │ ├┬┘├─┤ │ │ │├┬┘
  └─┘┴└─└─┘┴ ┴└─┘└─┘ ┴ ┴└─┴ ┴ ┴ └─┘┴└─
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		color.Red("Error: %v\n", err)
		if errors.Is(err, client.ErrDaemonNotRunning) {
			fmt.Fprintln(os.Stderr, "Start it with: orchestrator serve")
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return nil
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	case "version", "--version":
		fmt.Fprintf(out, "orchestrator %s\n", server.Version)
		return nil
	}

	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cmd == "serve" {
		return cmdServe(cfg, args, out)
	}

	c := &cli{
		out:    out,
		cwd:    cwd,
		client: client.New(cfg.Daemon.SocketPath, fmt.Sprintf("http://%s:%d", cfg.Daemon.Host, cfg.Daemon.Port)),
	}
	switch cmd {
	case "spawn":
		return c.spawn(args)
	case "list":
		return c.list(args)
	case "message":
		return c.message(args)
	case "history":
		return c.history(args)
	case "task":
		return c.task(args)
	case "shutdown":
		return c.shutdown(args)
	case "health":
		return c.health(args)
	case "providers":
		return c.providers(args)
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: orchestrator <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Daemon:")
	fmt.Fprintln(w, "  serve [--port N]              Run the daemon in the foreground")
	fmt.Fprintln(w, "  serve --status                Report whether the daemon is running")
	fmt.Fprintln(w, "  serve --stop                  Stop the running daemon")
	fmt.Fprintln(w, "  health                        Show daemon health")
	fmt.Fprintln(w, "  providers                     List provider kinds")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Agents:")
	fmt.Fprintln(w, "  spawn <name> [flags]          Create an agent")
	fmt.Fprintln(w, "  list [--state S] [--provider P]")
	fmt.Fprintln(w, "                                List agents")
	fmt.Fprintln(w, "  message <name> <text>         Send a message and print the replies")
	fmt.Fprintln(w, "  history <name> [--limit N]    Show conversation history")
	fmt.Fprintln(w, "  task <name> <prompt> [flags]  Spawn, send one prompt, shut down")
	fmt.Fprintln(w, "  shutdown <name> | --all       Shut down agents")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  ORCH_PORT, ORCH_SOCKET_PATH, ORCH_PID_PATH, ORCH_LOG_LEVEL, ORCH_LOG_FORMAT")
	fmt.Fprintln(w, "  ORCH_DEFAULT_PROVIDER, ORCH_DEFAULT_MODEL, CLAUDE_BINARY, OPENAI_API_KEY")
	fmt.Fprintln(w)
}
