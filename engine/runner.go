// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/cachestore"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// JobRunner drives one job from provisioning to teardown: provision
// the environment, restore the cache (when declared), run the steps
// strictly in order stopping at the first failure, save the cache
// after a fully successful run, and tear the environment down.
//
// The runner owns nothing across calls; a single runner may execute
// many jobs concurrently.
type JobRunner struct {
	// Executor runs individual steps. Required.
	Executor *StepExecutor

	// Provisioner creates job environments. Required.
	Provisioner Provisioner

	// Store backs the cache gate. May be nil when no job in the
	// pipeline declares a cache.
	Store cachestore.Store

	// Logger receives per-job diagnostics. Required.
	Logger *slog.Logger

	// RunLog receives structured step and job entries. May be nil.
	RunLog *RunLog
}

// Run executes one job for the given trigger event (nil for manual
// runs) and returns its result. The result is always well-formed:
// provisioning failures, step failures, and cancellation all produce
// a terminal RunResult rather than a bare error.
func (r *JobRunner) Run(ctx context.Context, job pipeline.Job, event *pipeline.TriggerEvent) pipeline.RunResult {
	startTime := time.Now()
	result := pipeline.RunResult{Job: job.Name, FailedStep: -1}

	finish := func() pipeline.RunResult {
		result.DurationMS = time.Since(startTime).Milliseconds()
		r.RunLog.WriteJob(result)
		return result
	}

	if ctx.Err() != nil {
		result.Status = pipeline.JobCancelled
		result.Error = "cancelled before start"
		return finish()
	}

	env, err := r.Provisioner.Provision(job.Name, job.RunsOn)
	if err != nil {
		provisionErr := &EnvironmentProvisionError{Job: job.Name, Err: err}
		r.Logger.Error("environment provisioning failed", "job", job.Name, "error", err)
		result.Status = pipeline.JobFailure
		result.Error = provisionErr.Error()
		return finish()
	}
	defer func() {
		if err := r.Provisioner.Teardown(env); err != nil {
			r.Logger.Warn("environment teardown failed", "job", job.Name, "error", err)
		}
	}()

	// Steps can see what triggered the run.
	if event != nil {
		env.SetVar("CONVEYOR_EVENT", string(event.Kind))
		env.SetVar("CONVEYOR_REF", event.Ref)
		env.SetVar("CONVEYOR_COMMIT", event.Commit)
	}

	var gate *CacheGate
	if job.Cache != nil && r.Store != nil {
		gate = NewCacheGate(r.Store, r.Logger, job.Name, job.Cache)
	}

	// Steps execute strictly sequentially; the first failure stops
	// the job and later steps never start.
	restoreAttempted := false
	for index, step := range job.Steps {
		// Restore runs once per job: either through an explicit
		// restore-cache step, or automatically before the first
		// command step. Deferring past the leading action steps
		// lets checkout materialize the fingerprint inputs first.
		if gate != nil && !restoreAttempted && !step.IsAction() {
			restoreAttempted = true
			restored, restoreErr := gate.Restore(ctx, env)
			if restoreErr != nil {
				r.Logger.Error("cache key derivation failed", "job", job.Name, "error", restoreErr)
				result.Status = pipeline.JobFailure
				result.FailedStep = index
				result.Error = restoreErr.Error()
				return finish()
			}
			result.CacheRestored = restored
		}

		stepResult, stepErr := r.Executor.Execute(ctx, env, step, index, gate, event)
		if step.IsAction() {
			if name, _, refErr := step.ActionRef(); refErr == nil && name == "restore-cache" {
				restoreAttempted = true
			}
		}
		if gate != nil {
			result.CacheRestored = gate.Restored()
		}
		result.Steps = append(result.Steps, stepResult)
		r.RunLog.WriteStep(job.Name, index, stepResult)

		if stepErr != nil {
			result.FailedStep = index
			result.Error = stepErr.Error()
			if stepResult.Status == pipeline.StepCancelled || ctx.Err() != nil {
				result.Status = pipeline.JobCancelled
			} else {
				result.Status = pipeline.JobFailure
			}
			var failure *StepFailure
			if errors.As(stepErr, &failure) {
				r.Logger.Error("step failed", "job", job.Name, "step", failure.Step, "exit_code", failure.ExitCode)
			}
			return finish()
		}
	}

	// Save only after every step succeeded. A failed job must not
	// poison the cache with half-built state. Save failures are
	// logged and do not fail the job.
	if gate != nil {
		if err := gate.Save(ctx, env); err != nil {
			r.Logger.Warn("cache save failed", "job", job.Name, "error", err)
		}
	}

	result.Status = pipeline.JobSuccess
	return finish()
}
