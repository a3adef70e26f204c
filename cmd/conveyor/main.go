// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Command conveyor runs CI pipeline declarations: parallel jobs of
// sequential steps with per-job caching.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/process"
	"github.com/conveyor-foundation/conveyor/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like run) return an
		// ExitError with the desired exit code. Don't print a
		// redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	// A pipeline run in flight gets one chance to wind down: the
	// first signal cancels the context and jobs report cancelled;
	// the second kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verbose := false
	for _, arg := range os.Args[1:] {
		if arg == "--verbose" || arg == "-v" {
			verbose = true
		}
	}
	logger := cli.NewCommandLogger(verbose)

	root := rootCommand()
	return root.Execute(ctx, os.Args[1:], logger)
}

func rootCommand() *cli.Command {
	var showVersion bool

	root := &cli.Command{
		Name: "conveyor",
		Description: `Conveyor: a CI job orchestration engine.

Runs pipeline declarations: independent jobs execute in parallel,
each job's steps execute strictly in order, and per-job caches skip
redundant dependency work across runs.`,
		Subcommands: []*cli.Command{
			runCommand(),
			validateCommand(),
			showCommand(),
			cacheCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Run every job of a pipeline",
				Command:     "conveyor run ci.pipeline.json",
			},
			{
				Description: "Run a single job",
				Command:     "conveyor run ci.pipeline.json --job test",
			},
			{
				Description: "Check a declaration without running it",
				Command:     "conveyor validate ci.pipeline.json",
			},
		},
	}
	root.Flags = func() *pflag.FlagSet {
		flags := pflag.NewFlagSet("conveyor", pflag.ContinueOnError)
		flags.BoolVar(&showVersion, "version", false, "print version information and exit")
		return flags
	}
	// Run handles the bare invocation: --version prints and exits,
	// anything else gets the help text.
	root.Run = func(_ context.Context, _ []string, _ *slog.Logger) error {
		if showVersion {
			fmt.Printf("conveyor %s\n", version.Full())
			return nil
		}
		root.PrintHelp(os.Stderr)
		return fmt.Errorf("subcommand required")
	}
	return root
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			fmt.Printf("conveyor %s\n", version.Full())
			return nil
		},
	}
}
