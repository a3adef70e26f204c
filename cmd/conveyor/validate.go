// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
	"github.com/conveyor-foundation/conveyor/lib/pipelinedef"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Check a pipeline declaration without running it",
		Usage:   "conveyor validate <file>",
		Description: `Check a pipeline declaration without running it.

Parses the declaration and reports every validation issue, not just
the first. Exits 1 when the declaration is invalid.`,
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: conveyor validate <file>")
			}
			declaration, err := pipelinedef.ReadFile(args[0])
			if err != nil {
				return err
			}
			issues := pipelinedef.Validate(declaration)
			if len(issues) == 0 {
				fmt.Printf("%s: valid (%d jobs)\n", args[0], len(declaration.Jobs))
				return nil
			}
			fmt.Fprintf(os.Stderr, "%s: %d issue(s)\n", args[0], len(issues))
			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "  - %s\n", issue)
			}
			return &cli.ExitError{Code: 1}
		},
	}
}
