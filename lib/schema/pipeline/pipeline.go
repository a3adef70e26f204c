// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"strings"
)

// Pipeline is a complete pipeline declaration: a set of independent
// jobs triggered by a repository event. Jobs have no dependency edges
// among them — the scheduler fans them all out in parallel. The
// declaration is immutable during a run; the engine never writes back
// to it.
type Pipeline struct {
	// Name identifies the pipeline in logs and results (e.g., "ci").
	Name string `json:"name"`

	// Triggers lists the event kinds that start this pipeline. The
	// engine does not subscribe to anything itself — the trigger
	// listener is an external collaborator — but a run's event kind
	// must appear here for the pipeline to be eligible.
	Triggers []EventKind `json:"triggers,omitempty"`

	// Jobs is the ordered list of job declarations. Declaration order
	// is preserved through parse/serialize round-trips and determines
	// the order of results in the aggregate, but carries no execution
	// ordering: jobs run concurrently.
	Jobs []Job `json:"jobs"`
}

// Job returns the job with the given name, or false if no such job is
// declared.
func (p *Pipeline) Job(name string) (*Job, bool) {
	for i := range p.Jobs {
		if p.Jobs[i].Name == name {
			return &p.Jobs[i], true
		}
	}
	return nil, false
}

// Select returns a copy of the pipeline containing only the named
// jobs, in declaration order. Returns an error naming the first
// selector that matches no declared job. An empty selection returns
// the pipeline unchanged.
func (p *Pipeline) Select(names []string) (*Pipeline, error) {
	if len(names) == 0 {
		return p, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := p.Job(name); !ok {
			return nil, fmt.Errorf("pipeline %q has no job %q", p.Name, name)
		}
		wanted[name] = true
	}

	selected := &Pipeline{Name: p.Name, Triggers: p.Triggers}
	for _, job := range p.Jobs {
		if wanted[job.Name] {
			selected.Jobs = append(selected.Jobs, job)
		}
	}
	return selected, nil
}

// Job is an independently schedulable unit: an ordered sequence of
// steps that share one isolated environment instance for the duration
// of the job's run. The first failing step stops the job (fail-fast);
// other jobs are unaffected.
type Job struct {
	// Name identifies the job within the pipeline. Must be unique
	// across the declaration — results and cache keys are addressed
	// by job name.
	Name string `json:"name"`

	// RunsOn describes the target environment (e.g., "ubuntu-latest").
	// The local engine records it on the provisioned environment; it
	// exists so declarations stay portable to runners that dispatch
	// on it.
	RunsOn string `json:"runs_on,omitempty"`

	// Cache configures the job's cache gate. When nil, the job runs
	// without cache restore/save. Each job's key template includes its
	// own identity, so concurrent jobs never contend on a key.
	Cache *CacheSpec `json:"cache,omitempty"`

	// Steps is the ordered step list. Steps execute strictly
	// sequentially; environment mutations made by a step (PATH,
	// workdir) persist to subsequent steps of the same job only.
	Steps []Step `json:"steps"`
}

// Step is one unit of work inside a job: either a reference to a
// built-in action (Uses) or an inline shell command (Run). Exactly one
// of the two must be set — the declaration validator enforces this.
type Step struct {
	// Name identifies the step in logs and results. Required, and
	// unique within the job.
	Name string `json:"name"`

	// Uses references a built-in action as "name@version" (e.g.,
	// "checkout@v4", "install-toolchain@v1"). Unknown references fail
	// closed at execution time. Mutually exclusive with Run.
	Uses string `json:"uses,omitempty"`

	// Run is a shell command executed via sh -c. Multi-line strings
	// are supported. Mutually exclusive with Uses.
	Run string `json:"run,omitempty"`

	// With carries action parameters. Only valid on Uses steps.
	With map[string]string `json:"with,omitempty"`

	// Env sets additional environment variables for this step only,
	// merged over the job environment; step values win on conflict.
	Env map[string]string `json:"env,omitempty"`

	// Timeout is the maximum duration for this step (e.g., "5m").
	// Parsed by time.ParseDuration. When empty, the engine's default
	// step timeout applies.
	Timeout string `json:"timeout,omitempty"`

	// GracePeriod is the duration between SIGTERM and SIGKILL when
	// the step is cancelled or times out. When empty, the engine's
	// default applies; zero means immediate SIGKILL. Only meaningful
	// on Run steps — action handlers are in-process and observe
	// context cancellation directly.
	GracePeriod string `json:"grace_period,omitempty"`
}

// IsAction reports whether the step is an action reference.
func (s *Step) IsAction() bool { return s.Uses != "" }

// ActionRef splits the step's Uses field into action name and version.
// The reference must have the form "name@version" with both parts
// non-empty.
func (s *Step) ActionRef() (name, version string, err error) {
	at := strings.LastIndex(s.Uses, "@")
	if at <= 0 || at == len(s.Uses)-1 {
		return "", "", fmt.Errorf("action reference %q: want \"name@version\"", s.Uses)
	}
	return s.Uses[:at], s.Uses[at+1:], nil
}

// CacheSpec configures a job's cache gate: which inputs fingerprint
// the key and which paths are captured into the entry.
type CacheSpec struct {
	// Key is the cache key template. Two placeholders are expanded:
	// ${JOB} (the job name) and ${FINGERPRINT} (the hex digest of the
	// fingerprint files). A key that omits ${JOB} still gets the job
	// identity mixed in — keys are always scoped per job.
	Key string `json:"key"`

	// Fingerprint lists files (relative to the job's working
	// directory) whose contents are hashed into ${FINGERPRINT}.
	// Typically a dependency lock file. Missing files hash as empty,
	// so a fresh checkout without the file still derives a stable key.
	Fingerprint []string `json:"fingerprint,omitempty"`

	// Paths lists directories (relative to the environment root) that
	// are captured into the cache entry after a successful run and
	// restored before steps execute.
	Paths []string `json:"paths"`
}
