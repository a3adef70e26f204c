// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Environment is one job's isolated execution context. All steps of a
// job run inside the same environment; mutations (PATH entries, extra
// variables) persist across steps of that job and are discarded on
// teardown. Environments of concurrent jobs never share state.
type Environment struct {
	// Job is the owning job's name.
	Job string

	// RunsOn is the declared target label, recorded for diagnostics.
	RunsOn string

	// Root is the environment's private directory. Cache paths are
	// resolved relative to it.
	Root string

	// WorkDir is the working directory commands run in. Starts as
	// Root/work; the checkout action populates it.
	WorkDir string

	vars map[string]string
	path []string
}

// Provisioner creates and destroys job environments.
type Provisioner interface {
	// Provision creates a fresh environment for the job. The returned
	// environment is exclusively owned by the caller.
	Provision(job, runsOn string) (*Environment, error)

	// Teardown releases the environment's resources. Safe to call
	// exactly once per provisioned environment.
	Teardown(env *Environment) error
}

// SetVar sets a job-level environment variable visible to all
// subsequent steps.
func (e *Environment) SetVar(name, value string) {
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[name] = value
}

// PrependPath adds a directory to the front of the environment's PATH
// for all subsequent steps.
func (e *Environment) PrependPath(dir string) {
	e.path = append([]string{dir}, e.path...)
}

// Environ returns the full variable list for commands in this
// environment: the process environment, the job-level variables, and
// a PATH with the environment's prepended entries. Job variables are
// emitted in sorted order so the list is deterministic.
func (e *Environment) Environ() []string {
	environ := os.Environ()

	names := make([]string, 0, len(e.vars))
	for name := range e.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		environ = append(environ, name+"="+e.vars[name])
	}

	if len(e.path) > 0 {
		path := os.Getenv("PATH")
		for i := len(e.path) - 1; i >= 0; i-- {
			path = e.path[i] + string(os.PathListSeparator) + path
		}
		environ = append(environ, "PATH="+path)
	}
	return environ
}

// LocalProvisioner provisions environments as private temporary
// directories on the local machine. It satisfies the isolation
// contract at the filesystem level: each job gets its own root and
// working directory, and nothing is shared between jobs.
type LocalProvisioner struct {
	// BaseDir is the parent for environment roots. Empty means the
	// system temporary directory.
	BaseDir string
}

// Provision implements Provisioner.
func (p *LocalProvisioner) Provision(job, runsOn string) (*Environment, error) {
	root, err := os.MkdirTemp(p.BaseDir, "conveyor-"+job+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating environment root: %w", err)
	}
	workDir := filepath.Join(root, "work")
	if err := os.Mkdir(workDir, 0o755); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("creating working directory: %w", err)
	}
	env := &Environment{
		Job:     job,
		RunsOn:  runsOn,
		Root:    root,
		WorkDir: workDir,
	}
	// Standard variables every step can rely on.
	env.SetVar("CONVEYOR_JOB", job)
	env.SetVar("CONVEYOR_ROOT", root)
	env.SetVar("CONVEYOR_WORKDIR", workDir)
	return env, nil
}

// Teardown implements Provisioner.
func (p *LocalProvisioner) Teardown(env *Environment) error {
	if env == nil || env.Root == "" {
		return nil
	}
	return os.RemoveAll(env.Root)
}
