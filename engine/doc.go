// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine executes pipeline declarations: it provisions an
// isolated environment per job, runs each job's steps sequentially
// with fail-fast semantics, gates expensive derived state behind a
// content-addressed cache, and schedules independent jobs in parallel
// with cancellation and timeout control.
//
// The package is layered bottom-up:
//
//   - StepExecutor runs one step (shell command or built-in action)
//     inside a job environment and reports a StepResult.
//   - CacheGate wraps a cachestore.Store with key derivation and
//     tar packing; misses and corrupt entries degrade to a cold run.
//   - JobRunner drives one job start to finish: provision, restore,
//     steps, save, teardown.
//   - Scheduler fans all jobs of a pipeline out concurrently and
//     aggregates their outcomes into a PipelineResult.
//
// Declarations are never mutated; all run state lives in result
// values owned by the caller.
package engine
