// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
)

func showCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: "Print a pipeline declaration's structure",
		Usage:   "conveyor show <file>",
		Description: `Print a pipeline declaration's structure: jobs, their steps, and
cache configuration. The declaration must be valid.`,
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor show <file>")
			}
			declaration, err := loadValidDeclaration(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("pipeline: %s\n", declaration.Name)
			if len(declaration.Triggers) > 0 {
				fmt.Printf("triggers:")
				for _, kind := range declaration.Triggers {
					fmt.Printf(" %s", kind)
				}
				fmt.Println()
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			for _, job := range declaration.Jobs {
				fmt.Fprintf(writer, "\njob %s\t(%d steps)\n", job.Name, len(job.Steps))
				if job.Cache != nil {
					fmt.Fprintf(writer, "  cache\tkey=%s paths=%v\n", job.Cache.Key, job.Cache.Paths)
				}
				for i, step := range job.Steps {
					what := step.Run
					if step.IsAction() {
						what = "uses " + step.Uses
					}
					fmt.Fprintf(writer, "  %d. %s\t%s\n", i+1, step.Name, what)
				}
			}
			return writer.Flush()
		},
	}
}
