// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/cachestore"
	"github.com/conveyor-foundation/conveyor/lib/config"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Manage the job cache store",
		Subcommands: []*cli.Command{
			cacheClearCommand(),
		},
	}
}

func cacheClearCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "clear",
		Summary: "Delete every cache entry",
		Usage:   "conveyor cache clear [flags]",
		Description: `Delete every cache entry from the configured store. Jobs run cold
on the next pipeline run and repopulate their entries on success.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "path to the conveyor config file")
			return flags
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: conveyor cache clear [flags]")
			}
			configuration, err := config.Load(configPath)
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
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			logger.Info("cache cleared", "directory", configuration.Cache.Directory)
			fmt.Printf("cleared cache at %s\n", configuration.Cache.Directory)
			return nil
		},
	}
}
