// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"fmt"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// Validate checks a declaration for structural issues. Returns a list
// of human-readable issue descriptions. An empty list means the
// declaration is valid.
//
// Structural checks include:
//   - Pipeline name is required
//   - Trigger kinds must be known (push, pull_request)
//   - At least one job is required
//   - Job names must be non-empty and unique within the pipeline
//   - Each job needs at least one step
//   - Step names must be non-empty and unique within their job
//   - Each step must set exactly one of Uses or Run
//   - With parameters are only valid on Uses steps
//   - Uses references must have the form "name@version"
//   - Timeout and GracePeriod must be parseable by time.ParseDuration
//   - Cache blocks must declare a key and at least one path
func Validate(declaration *pipeline.Pipeline) []string {
	var issues []string

	if declaration.Name == "" {
		issues = append(issues, "pipeline name is required")
	}

	for index, kind := range declaration.Triggers {
		if !kind.Known() {
			issues = append(issues, fmt.Sprintf("triggers[%d]: unknown event kind %q", index, kind))
		}
	}

	if len(declaration.Jobs) == 0 {
		issues = append(issues, "pipeline has no jobs (at least one job is required)")
	}

	// Job names must be unique. Results and cache keys are addressed
	// by job name — a duplicate would make one job's outcome and cache
	// entry silently shadow the other's.
	jobNames := make(map[string]int, len(declaration.Jobs))
	for index, job := range declaration.Jobs {
		if job.Name != "" {
			if firstIndex, exists := jobNames[job.Name]; exists {
				issues = append(issues, fmt.Sprintf(
					"jobs[%d] %q: duplicate job name (first used at jobs[%d])",
					index, job.Name, firstIndex,
				))
			} else {
				jobNames[job.Name] = index
			}
		}
	}

	for index, job := range declaration.Jobs {
		prefix := fmt.Sprintf("jobs[%d]", index)
		issues = append(issues, validateJob(job, prefix)...)
	}

	return issues
}

// validateJob checks a single job declaration. The prefix identifies
// the job's position (e.g., "jobs[0]") for error messages.
func validateJob(job pipeline.Job, prefix string) []string {
	var issues []string

	if job.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	} else {
		prefix = fmt.Sprintf("%s %q", prefix, job.Name)
	}

	if len(job.Steps) == 0 {
		issues = append(issues, fmt.Sprintf("%s: job has no steps (at least one step is required)", prefix))
	}

	stepNames := make(map[string]int, len(job.Steps))
	for index, step := range job.Steps {
		if step.Name != "" {
			if firstIndex, exists := stepNames[step.Name]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s: steps[%d] %q: duplicate step name (first used at steps[%d])",
					prefix, index, step.Name, firstIndex,
				))
			} else {
				stepNames[step.Name] = index
			}
		}
	}

	for index, step := range job.Steps {
		stepPrefix := fmt.Sprintf("%s: steps[%d]", prefix, index)
		issues = append(issues, validateStep(step, stepPrefix)...)
	}

	if job.Cache != nil {
		issues = append(issues, validateCache(job.Cache, prefix)...)
	}

	return issues
}

// validateStep checks a single step declaration.
func validateStep(step pipeline.Step, prefix string) []string {
	var issues []string

	if step.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	} else {
		prefix = fmt.Sprintf("%s %q", prefix, step.Name)
	}

	hasUses := step.Uses != ""
	hasRun := step.Run != ""

	switch {
	case hasUses && hasRun:
		issues = append(issues, fmt.Sprintf("%s: uses and run are mutually exclusive (set exactly one)", prefix))
	case !hasUses && !hasRun:
		issues = append(issues, fmt.Sprintf("%s: must set exactly one of uses or run", prefix))
	}

	if hasUses {
		if _, _, err := step.ActionRef(); err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", prefix, err))
		}
	}

	// With parameters only make sense for action steps — a shell
	// command receives its inputs through Env.
	if len(step.With) > 0 && !hasUses {
		issues = append(issues, fmt.Sprintf("%s: with parameters are only valid on uses steps", prefix))
	}

	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", prefix, step.Timeout, err))
		}
	}

	if step.GracePeriod != "" {
		if _, err := time.ParseDuration(step.GracePeriod); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid grace_period %q: %v", prefix, step.GracePeriod, err))
		}
		if !hasRun {
			issues = append(issues, fmt.Sprintf("%s: grace_period is only valid on run steps", prefix))
		}
	}

	return issues
}

// validateCache checks a job's cache block.
func validateCache(cache *pipeline.CacheSpec, prefix string) []string {
	var issues []string

	if cache.Key == "" {
		issues = append(issues, fmt.Sprintf("%s: cache.key is required", prefix))
	}
	if len(cache.Paths) == 0 {
		issues = append(issues, fmt.Sprintf("%s: cache.paths is required (at least one path)", prefix))
	}
	for index, path := range cache.Paths {
		if path == "" {
			issues = append(issues, fmt.Sprintf("%s: cache.paths[%d] is empty", prefix, index))
		}
	}
	for index, file := range cache.Fingerprint {
		if file == "" {
			issues = append(issues, fmt.Sprintf("%s: cache.fingerprint[%d] is empty", prefix, index))
		}
	}

	return issues
}
