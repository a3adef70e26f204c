// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// Default timeouts applied to steps that declare none.
const (
	DefaultStepTimeout = 5 * time.Minute
	DefaultGracePeriod = 10 * time.Second
)

// StepExecutor runs a single step inside a job environment. Command
// steps run via sh -c with captured output; action steps dispatch to
// the built-in registry. The exit code alone decides success — output
// streams are captured verbatim for diagnostics, never parsed.
type StepExecutor struct {
	// Registry resolves action references. Required.
	Registry *Registry

	// Logger receives per-step diagnostics. Required.
	Logger *slog.Logger

	// StepTimeout applies to steps without their own timeout. Zero
	// means DefaultStepTimeout.
	StepTimeout time.Duration

	// GracePeriod is the SIGTERM to SIGKILL window for cancelled
	// command steps that declare none. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// Execute runs one step and reports its result. The returned error is
// non-nil exactly when the result status is not StepOK: a *StepFailure
// wrapping the cause, so the job runner can stop the job. Cancellation
// (ctx done, or step timeout) yields StepCancelled.
func (x *StepExecutor) Execute(ctx context.Context, env *Environment, step pipeline.Step, index int, gate *CacheGate, event *pipeline.TriggerEvent) (pipeline.StepResult, error) {
	startTime := time.Now()

	timeout := x.StepTimeout
	if timeout == 0 {
		timeout = DefaultStepTimeout
	}
	if step.Timeout != "" {
		parsed, err := time.ParseDuration(step.Timeout)
		if err != nil {
			// Validate should have caught this, but fail loud if not.
			return x.failed(step, index, startTime, nil, nil, fmt.Errorf("invalid timeout %q: %w", step.Timeout, err))
		}
		timeout = parsed
	}

	stepContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if step.IsAction() {
		return x.executeAction(stepContext, env, step, index, startTime, gate, event)
	}
	return x.executeCommand(stepContext, env, step, index, startTime)
}

// executeAction resolves and runs a built-in action handler.
func (x *StepExecutor) executeAction(ctx context.Context, env *Environment, step pipeline.Step, index int, startTime time.Time, gate *CacheGate, event *pipeline.TriggerEvent) (pipeline.StepResult, error) {
	name, version, err := step.ActionRef()
	if err != nil {
		return x.failed(step, index, startTime, nil, nil, err)
	}
	handler, err := x.Registry.Lookup(name, version)
	if err != nil {
		return x.failed(step, index, startTime, nil, nil, err)
	}

	x.Logger.Debug("running action step", "job", env.Job, "step", step.Name, "action", step.Uses)
	err = handler(ctx, &ActionContext{Env: env, With: step.With, Cache: gate, Event: event})
	if err != nil {
		if ctx.Err() != nil {
			return x.cancelled(step, index, startTime, nil, nil, err)
		}
		return x.failed(step, index, startTime, nil, nil, err)
	}
	return pipeline.StepResult{
		Name:       step.Name,
		Status:     pipeline.StepOK,
		DurationMS: time.Since(startTime).Milliseconds(),
	}, nil
}

// executeCommand runs a shell command step with captured output.
func (x *StepExecutor) executeCommand(ctx context.Context, env *Environment, step pipeline.Step, index int, startTime time.Time) (pipeline.StepResult, error) {
	gracePeriod := x.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = DefaultGracePeriod
	}
	if step.GracePeriod != "" {
		parsed, err := time.ParseDuration(step.GracePeriod)
		if err != nil {
			return x.failed(step, index, startTime, nil, nil, fmt.Errorf("invalid grace_period %q: %w", step.GracePeriod, err))
		}
		gracePeriod = parsed
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", step.Run)
	cmd.Dir = env.WorkDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Merge step variables over the job environment; step values win
	// because later entries override earlier ones.
	cmd.Env = env.Environ()
	for name, value := range step.Env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}

	// Run the shell in its own process group so that cancellation
	// reaches the shell and all its children (negative PID targets
	// the whole group). Without Setpgid only the shell is signalled
	// and grandchildren survive, holding the step open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if gracePeriod > 0 {
		// Graceful: SIGTERM the process group first, escalate to
		// SIGKILL after the grace period if it has not exited.
		cmd.Cancel = func() error {
			processGroup := -cmd.Process.Pid
			if err := unix.Kill(processGroup, unix.SIGTERM); err != nil {
				return unix.Kill(processGroup, unix.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// The group may have already exited; ESRCH is harmless.
				_ = unix.Kill(processGroup, unix.SIGKILL)
			}()
			return nil
		}
	} else {
		cmd.Cancel = func() error {
			return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
	}

	x.Logger.Debug("running command step", "job", env.Job, "step", step.Name)
	runErr := cmd.Run()

	if runErr == nil {
		return pipeline.StepResult{
			Name:       step.Name,
			Status:     pipeline.StepOK,
			DurationMS: time.Since(startTime).Milliseconds(),
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
		}, nil
	}

	if ctx.Err() != nil {
		return x.cancelled(step, index, startTime, &stdout, &stderr, fmt.Errorf("step cancelled: %w", ctx.Err()))
	}

	var exitError *exec.ExitError
	if errors.As(runErr, &exitError) {
		code := exitError.ExitCode()
		cause := fmt.Errorf("exit code %d", code)
		result := pipeline.StepResult{
			Name:       step.Name,
			Status:     pipeline.StepFailed,
			ExitCode:   code,
			DurationMS: time.Since(startTime).Milliseconds(),
			Stdout:     stdout.String(),
			Stderr:     stderr.String(),
			Error:      cause.Error(),
		}
		return result, &StepFailure{Step: step.Name, Index: index, ExitCode: code, Err: cause}
	}

	// Startup errors: sh not found, workdir missing, fork failure.
	return x.failed(step, index, startTime, &stdout, &stderr, runErr)
}

func (x *StepExecutor) failed(step pipeline.Step, index int, startTime time.Time, stdout, stderr *bytes.Buffer, cause error) (pipeline.StepResult, error) {
	result := pipeline.StepResult{
		Name:       step.Name,
		Status:     pipeline.StepFailed,
		ExitCode:   -1,
		DurationMS: time.Since(startTime).Milliseconds(),
		Error:      cause.Error(),
	}
	if stdout != nil {
		result.Stdout = stdout.String()
	}
	if stderr != nil {
		result.Stderr = stderr.String()
	}
	return result, &StepFailure{Step: step.Name, Index: index, ExitCode: -1, Err: cause}
}

func (x *StepExecutor) cancelled(step pipeline.Step, index int, startTime time.Time, stdout, stderr *bytes.Buffer, cause error) (pipeline.StepResult, error) {
	result, err := x.failed(step, index, startTime, stdout, stderr, cause)
	result.Status = pipeline.StepCancelled
	return result, err
}
