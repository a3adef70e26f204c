// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline defines the Conveyor pipeline protocol types:
// pipeline declarations (jobs, steps, cache specifications, trigger
// kinds), trigger events, and run results. These are the content
// structs for declaration files parsed by lib/pipelinedef and for the
// result records produced by the engine.
//
// Declarations are external-facing JSON (authored as JSONC on disk),
// so every type here carries `json` tags. Run results are also JSON —
// they appear in the engine's JSONL run log and in CLI --json output.
package pipeline
