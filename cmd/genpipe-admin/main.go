package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

func main() {
	logger := bootstrap.InitLogger(config.LogConfig{Level: "info", Format: config.LogFormatText})

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: os.Stdout}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.Error("command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"dispatch": {
			name:        "dispatch",
			description: "Start (or reuse) a generation through the HTTP API",
			run:         runDispatch,
		},
		"status": {
			name:        "status",
			description: "Show the current state of a generation",
			run:         runStatus,
		},
		"await": {
			name:        "await",
			description: "Poll a generation until it completes, fails or times out",
			run:         runAwait,
		},
		"cancel": {
			name:        "cancel",
			description: "Request cancellation of a pending generation",
			run:         runCancel,
		},
		"sweep": {
			name:        "sweep",
			description: "Delete expired results and finished queue events once",
			run:         runSweep,
		},
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, "Usage: genpipe-admin <command> [flags]\n\nAvailable commands:\n")
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands()[name].description)
	}
}
