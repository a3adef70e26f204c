// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
)

// JobStatus is the terminal outcome of one job's run.
type JobStatus string

const (
	// JobSuccess means every step completed with exit code zero and
	// the cache save (if configured) was attempted.
	JobSuccess JobStatus = "success"

	// JobFailure means a step failed, an action reference could not
	// be resolved, or the job's environment could not be provisioned.
	JobFailure JobStatus = "failure"

	// JobCancelled means a cancellation signal (pipeline-wide or
	// timeout-triggered) reached the job before it finished.
	JobCancelled JobStatus = "cancelled"
)

// StepStatus is the outcome of a single executed step. Steps that were
// never reached (due to an earlier failure or cancellation) produce no
// StepResult at all.
type StepStatus string

const (
	// StepOK means the step completed successfully.
	StepOK StepStatus = "ok"

	// StepFailed means the step's command exited non-zero, its action
	// handler returned an error, or its action reference was unknown.
	StepFailed StepStatus = "failed"

	// StepCancelled means the step was terminated by cancellation or
	// timeout before it completed.
	StepCancelled StepStatus = "cancelled"
)

// StepResult records the outcome of one executed step. Output streams
// are captured verbatim for diagnostics — the engine never parses them
// for success or failure; the exit code alone decides.
type StepResult struct {
	// Name is the step's identifier from the declaration.
	Name string `json:"name"`

	// Status is the step outcome.
	Status StepStatus `json:"status"`

	// ExitCode is the process exit code for command steps (0 on
	// success). Action steps report 0 on success and -1 on failure;
	// a command terminated by signal or cancellation reports -1.
	ExitCode int `json:"exit_code"`

	// DurationMS is the step wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// Stdout and Stderr hold the captured output streams, verbatim.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// Error is the failure diagnostic when Status is not "ok".
	Error string `json:"error,omitempty"`
}

// RunResult is the per-job outcome of a run. Owned by the scheduler
// once the job runner returns; immutable after creation.
type RunResult struct {
	// Job is the job name from the declaration.
	Job string `json:"job"`

	// Status is the job's terminal outcome.
	Status JobStatus `json:"status"`

	// Steps records each step that executed, in execution order.
	// Steps short-circuited by fail-fast are not included.
	Steps []StepResult `json:"steps,omitempty"`

	// FailedStep is the index (into the declaration's step list) of
	// the step that caused a failure, or -1 when no step failed —
	// including provisioning failures, which happen before any step.
	FailedStep int `json:"failed_step"`

	// Error is the job-level failure diagnostic. Empty on success.
	Error string `json:"error,omitempty"`

	// CacheRestored reports whether the cache gate restored an entry
	// before the steps ran. False on a miss, a corrupt entry, or when
	// the job declares no cache.
	CacheRestored bool `json:"cache_restored,omitempty"`

	// DurationMS is the job wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// Validate checks that the run result has valid required fields.
func (r *RunResult) Validate() error {
	if r.Job == "" {
		return errors.New("run result: job is required")
	}
	switch r.Status {
	case JobSuccess, JobFailure, JobCancelled:
		// Valid.
	case "":
		return errors.New("run result: status is required")
	default:
		return fmt.Errorf("run result: unknown status %q", r.Status)
	}
	if r.Status == JobSuccess && r.Error != "" {
		return fmt.Errorf("run result: successful job carries error %q", r.Error)
	}
	return nil
}

// Verdict is the pipeline-level outcome of a run.
type Verdict string

const (
	// VerdictSucceeded means every scheduled job reported success.
	VerdictSucceeded Verdict = "succeeded"

	// VerdictFailed means at least one job reported failure or
	// cancellation.
	VerdictFailed Verdict = "failed"
)

// PipelineResult aggregates one run's per-job outcomes. It enumerates
// every scheduled job's RunResult regardless of the pipeline verdict,
// for diagnostic completeness.
type PipelineResult struct {
	// Pipeline is the declaration name.
	Pipeline string `json:"pipeline"`

	// Verdict is the aggregate outcome: succeeded only when every
	// job reports success.
	Verdict Verdict `json:"verdict"`

	// Jobs holds one RunResult per scheduled job, in declaration
	// order.
	Jobs []RunResult `json:"jobs"`

	// DurationMS is the run wall-clock time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// FailedJobs returns the names of jobs that did not succeed, in
// declaration order.
func (r *PipelineResult) FailedJobs() []string {
	var failed []string
	for _, job := range r.Jobs {
		if job.Status != JobSuccess {
			failed = append(failed, job.Job)
		}
	}
	return failed
}

// Validate checks the aggregate for internal consistency: every job
// result must validate, and the verdict must match the job statuses.
func (r *PipelineResult) Validate() error {
	if r.Pipeline == "" {
		return errors.New("pipeline result: pipeline is required")
	}
	switch r.Verdict {
	case VerdictSucceeded, VerdictFailed:
		// Valid.
	case "":
		return errors.New("pipeline result: verdict is required")
	default:
		return fmt.Errorf("pipeline result: unknown verdict %q", r.Verdict)
	}
	allOK := true
	for i := range r.Jobs {
		if err := r.Jobs[i].Validate(); err != nil {
			return fmt.Errorf("pipeline result: jobs[%d]: %w", i, err)
		}
		if r.Jobs[i].Status != JobSuccess {
			allOK = false
		}
	}
	if allOK && r.Verdict != VerdictSucceeded {
		return errors.New("pipeline result: all jobs succeeded but verdict is not succeeded")
	}
	if !allOK && r.Verdict != VerdictFailed {
		return errors.New("pipeline result: a job did not succeed but verdict is not failed")
	}
	return nil
}
