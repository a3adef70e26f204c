// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/conveyor-foundation/conveyor/lib/config"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// ActionContext carries what a built-in action handler can see: the
// job's environment, the step's parameters, the job's cache gate (nil
// when the job declares no cache), and the trigger event the run was
// started for (nil for manual runs).
type ActionContext struct {
	Env   *Environment
	With  map[string]string
	Cache *CacheGate
	Event *pipeline.TriggerEvent
}

// ActionFunc is a built-in action handler. Handlers run in-process
// and observe cancellation through ctx. A returned error fails the
// step.
type ActionFunc func(ctx context.Context, action *ActionContext) error

// Registry resolves action references to their built-in handlers. The
// set is closed: checkout, install-toolchain, restore-cache, and
// save-cache. References to anything else fail with
// UnknownActionError — there is no dynamic action loading.
type Registry struct {
	handlers map[string]ActionFunc
}

// NewRegistry builds the built-in action set against the given
// actions configuration.
func NewRegistry(actions config.ActionsConfig) *Registry {
	registry := &Registry{handlers: make(map[string]ActionFunc)}
	registry.handlers["checkout"] = func(ctx context.Context, action *ActionContext) error {
		return runCheckout(ctx, actions.RepositoryRoot, action)
	}
	registry.handlers["install-toolchain"] = func(ctx context.Context, action *ActionContext) error {
		return runInstallToolchain(actions.ToolchainRoot, action)
	}
	registry.handlers["restore-cache"] = runRestoreCache
	registry.handlers["save-cache"] = runSaveCache
	return registry
}

// Lookup resolves an action name to its handler. The version part of
// the reference is accepted for any known action — versions exist so
// declarations stay portable; the built-in handlers implement the
// current behavior for every version.
func (r *Registry) Lookup(name, version string) (ActionFunc, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, &UnknownActionError{Name: name, Version: version}
	}
	return handler, nil
}

// runCheckout populates the job working directory with the repository
// working tree. The source is the "path" parameter when given, else
// the configured repository root. The real fetch mechanism (network
// clone, ref resolution) is an external collaborator — this handler
// copies an already materialized tree.
func runCheckout(ctx context.Context, repositoryRoot string, action *ActionContext) error {
	source := action.With["path"]
	if source == "" {
		source = repositoryRoot
	}
	if source == "" {
		return fmt.Errorf("checkout: no source: set the path parameter or actions.repository_root")
	}
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("checkout: source %s: %w", source, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("checkout: source %s is not a directory", source)
	}
	if err := copyTree(ctx, source, action.Env.WorkDir); err != nil {
		return err
	}

	// Record which ref and commit the tree corresponds to, so later
	// steps and post-run diagnostics can tell what was built.
	if action.Event != nil {
		record := fmt.Sprintf("ref %s\ncommit %s\n", action.Event.Ref, action.Event.Commit)
		if err := os.WriteFile(filepath.Join(action.Env.Root, "checkout-ref"), []byte(record), 0o644); err != nil {
			return fmt.Errorf("checkout: recording ref: %w", err)
		}
	}
	return nil
}

// runInstallToolchain makes a named toolchain available to subsequent
// steps by prepending <toolchain_root>/<name>/bin to the job's PATH.
// The toolchain is named by the "toolchain" parameter; "name" is
// accepted as an alias for older declarations.
func runInstallToolchain(toolchainRoot string, action *ActionContext) error {
	name := action.With["toolchain"]
	if name == "" {
		name = action.With["name"]
	}
	if name == "" {
		return fmt.Errorf("install-toolchain: the toolchain parameter is required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("install-toolchain: invalid toolchain name %q", name)
	}
	if toolchainRoot == "" {
		return fmt.Errorf("install-toolchain: actions.toolchain_root is not configured")
	}
	binDir := filepath.Join(toolchainRoot, name, "bin")
	info, err := os.Stat(binDir)
	if err != nil {
		return fmt.Errorf("install-toolchain: toolchain %q: %w", name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("install-toolchain: %s is not a directory", binDir)
	}
	action.Env.PrependPath(binDir)
	return nil
}

// runRestoreCache restores the job's cache entry into the
// environment. A miss is not an error: the step succeeds and the job
// proceeds cold.
func runRestoreCache(ctx context.Context, action *ActionContext) error {
	if action.Cache == nil {
		return fmt.Errorf("restore-cache: job declares no cache")
	}
	_, err := action.Cache.Restore(ctx, action.Env)
	return err
}

// runSaveCache captures the declared cache paths into the store under
// the job's derived key.
func runSaveCache(ctx context.Context, action *ActionContext) error {
	if action.Cache == nil {
		return fmt.Errorf("save-cache: job declares no cache")
	}
	return action.Cache.Save(ctx, action.Env)
}

// copyTree copies the directory tree at source into destination.
// Regular files, directories, and symlinks are copied; permissions
// are preserved. Cancellation is checked per entry so large trees do
// not block shutdown.
func copyTree(ctx context.Context, source, destination string) error {
	return filepath.WalkDir(source, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, relative)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			if relative == "." {
				return nil
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Sockets, devices, and pipes have no place in a
			// working tree copy.
			return nil
		}
	})
}

func copyFile(source, destination string, perm os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
