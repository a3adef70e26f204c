// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree framework for the conveyor
// binary: command dispatch with pflag flag parsing, structured help
// output, typo suggestions, and exit code signalling.
package cli
