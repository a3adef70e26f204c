// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/engine"
	"github.com/conveyor-foundation/conveyor/lib/cachestore"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/config"
	"github.com/conveyor-foundation/conveyor/lib/pipelinedef"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

func runCommand() *cli.Command {
	var (
		jobs            []string
		configPath      string
		eventPath       string
		resultLogPath   string
		maxParallel     int
		runTimeout      time.Duration
		cancelOnFailure bool
		verbose         bool
	)

	return &cli.Command{
		Name:    "run",
		Summary: "Execute a pipeline declaration",
		Usage:   "conveyor run <file> [flags]",
		Description: `Execute a pipeline declaration.

Every job runs in parallel in its own isolated environment; within a
job, steps run strictly in order and the first failure stops the job.
Exits 0 only when every scheduled job succeeds.`,
		Examples: []cli.Example{
			{
				Description: "Run every job",
				Command:     "conveyor run ci.pipeline.json",
			},
			{
				Description: "Run only the test and fmt jobs",
				Command:     "conveyor run ci.pipeline.json --job test --job fmt",
			},
			{
				Description: "Run for a pull request event",
				Command:     "conveyor run ci.pipeline.json --event pr.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.StringArrayVar(&jobs, "job", nil, "run only the named job (repeatable)")
			flags.StringVar(&configPath, "config", "", "path to the conveyor config file")
			flags.StringVar(&eventPath, "event", "", "path to a trigger event JSON file")
			flags.StringVar(&resultLogPath, "result-log", "", "write a JSONL run log to this path")
			flags.IntVar(&maxParallel, "max-parallel", 0, "bound concurrently running jobs (0 = config value)")
			flags.DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 = config value)")
			flags.BoolVar(&cancelOnFailure, "cancel-on-failure", false, "cancel remaining jobs when one fails")
			flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
			return flags
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor run <file> [flags]")
			}
			return executeRun(ctx, args[0], runOptions{
				jobs:            jobs,
				configPath:      configPath,
				eventPath:       eventPath,
				resultLogPath:   resultLogPath,
				maxParallel:     maxParallel,
				runTimeout:      runTimeout,
				cancelOnFailure: cancelOnFailure,
			}, logger.With("command", "run"))
		},
	}
}

type runOptions struct {
	jobs            []string
	configPath      string
	eventPath       string
	resultLogPath   string
	maxParallel     int
	runTimeout      time.Duration
	cancelOnFailure bool
}

func executeRun(ctx context.Context, path string, options runOptions, logger *slog.Logger) error {
	configuration, err := config.Load(options.configPath)
	if err != nil {
		return err
	}

	declaration, err := loadValidDeclaration(path)
	if err != nil {
		return err
	}

	// Trigger eligibility: an explicit event must be one of the
	// declared trigger kinds. The accepted event rides along into the
	// run so steps and the checkout action can see what triggered it.
	var event *pipeline.TriggerEvent
	if options.eventPath != "" {
		loaded, err := engine.ReadEventFile(options.eventPath)
		if err != nil {
			return err
		}
		if !engine.Eligible(declaration, loaded) {
			return fmt.Errorf("pipeline %q does not trigger on %s events", declaration.Name, loaded.Kind)
		}
		logger.Info("trigger event accepted", "kind", loaded.Kind, "ref", loaded.Ref, "commit", loaded.Commit)
		event = &loaded
	}

	selected, err := declaration.Select(options.jobs)
	if err != nil {
		return err
	}

	compression, err := cachestore.ParseCompressionTag(configuration.Cache.Compression)
	if err != nil {
		return err
	}
	store, err := cachestore.NewDirStore(configuration.Cache.Directory, compression)
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}

	// The run log path comes from the flag or, for launcher
	// integration, the environment.
	resultLogPath := options.resultLogPath
	if resultLogPath == "" {
		resultLogPath = os.Getenv("CONVEYOR_RESULT_PATH")
	}
	var runLog *engine.RunLog
	if resultLogPath != "" {
		runLog, err = engine.NewRunLog(resultLogPath, logger)
		if err != nil {
			return err
		}
		defer runLog.Close()
	}

	maxParallel := options.maxParallel
	if maxParallel == 0 {
		maxParallel = configuration.Execution.MaxParallel
	}
	runTimeout := options.runTimeout
	if runTimeout == 0 {
		runTimeout = config.Duration(configuration.Execution.RunTimeout, time.Hour)
	}

	scheduler := &engine.Scheduler{
		Runner: &engine.JobRunner{
			Executor: &engine.StepExecutor{
				Registry:    engine.NewRegistry(configuration.Actions),
				Logger:      logger,
				StepTimeout: config.Duration(configuration.Execution.StepTimeout, engine.DefaultStepTimeout),
				GracePeriod: config.Duration(configuration.Execution.GracePeriod, engine.DefaultGracePeriod),
			},
			Provisioner: &engine.LocalProvisioner{},
			Store:       store,
			Logger:      logger,
			RunLog:      runLog,
		},
		Logger:          logger,
		Clock:           clock.Real(),
		RunLog:          runLog,
		MaxParallel:     maxParallel,
		RunTimeout:      runTimeout,
		CancelOnFailure: options.cancelOnFailure,
	}

	result := scheduler.Run(ctx, selected, event)
	printRunSummary(result)

	if result.Verdict != pipeline.VerdictSucceeded {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func loadValidDeclaration(path string) (*pipeline.Pipeline, error) {
	declaration, err := pipelinedef.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if issues := pipelinedef.Validate(declaration); len(issues) > 0 {
		return nil, fmt.Errorf("invalid declaration %s:\n  - %s", path, strings.Join(issues, "\n  - "))
	}
	return declaration, nil
}

func printRunSummary(result *pipeline.PipelineResult) {
	fmt.Printf("pipeline %s: %s (%s)\n", result.Pipeline, result.Verdict, formatMillis(result.DurationMS))
	for _, job := range result.Jobs {
		line := fmt.Sprintf("  %-12s %s (%s)", job.Job, job.Status, formatMillis(job.DurationMS))
		if job.CacheRestored {
			line += " [cache hit]"
		}
		fmt.Println(line)
		if job.Status != pipeline.JobSuccess && job.Error != "" {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", job.Job, job.Error)
		}
	}
	if failed := result.FailedJobs(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "failed jobs: %s\n", strings.Join(failed, ", "))
	}
}

func formatMillis(millis int64) string {
	return (time.Duration(millis) * time.Millisecond).Round(time.Millisecond).String()
}
