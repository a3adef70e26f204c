// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// UnknownActionError reports a step whose uses reference does not
// resolve to a built-in action. The action set is closed: unknown
// references fail the step rather than being skipped.
type UnknownActionError struct {
	// Name and Version are the parsed parts of the reference. Version
	// is empty when the reference itself was malformed.
	Name    string
	Version string
}

func (e *UnknownActionError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("unknown action %q", e.Name)
	}
	return fmt.Sprintf("unknown action %q version %q", e.Name, e.Version)
}

// StepFailure reports a step that executed and failed: non-zero exit
// code, action handler error, or termination by cancellation. The job
// runner stops the job at the first StepFailure.
type StepFailure struct {
	// Step is the step name from the declaration.
	Step string

	// Index is the step's position in the job's declaration.
	Index int

	// ExitCode is the process exit code, or -1 when the step did not
	// exit normally (signal, cancellation, action handler error).
	ExitCode int

	// Err is the underlying cause.
	Err error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// EnvironmentProvisionError reports that a job's isolated environment
// could not be set up. The job fails before any step runs.
type EnvironmentProvisionError struct {
	// Job is the job name from the declaration.
	Job string

	// Err is the underlying cause.
	Err error
}

func (e *EnvironmentProvisionError) Error() string {
	return fmt.Sprintf("provisioning environment for job %q: %v", e.Job, e.Err)
}

func (e *EnvironmentProvisionError) Unwrap() error { return e.Err }
