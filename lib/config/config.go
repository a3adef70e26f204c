// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Conveyor CLI
// and engine.
//
// Configuration is loaded from a single YAML file specified by:
//   - the CONVEYOR_CONFIG environment variable, or
//   - the --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// When neither source names a file, Default() applies.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conveyor-foundation/conveyor/lib/cachestore"
)

// Config is the master configuration for Conveyor.
type Config struct {
	// Cache configures the cache gate's backing store.
	Cache CacheConfig `yaml:"cache"`

	// Execution configures engine timeouts and parallelism.
	Execution ExecutionConfig `yaml:"execution"`

	// Actions configures the built-in action handlers.
	Actions ActionsConfig `yaml:"actions"`
}

// CacheConfig configures the cache gate's backing store.
type CacheConfig struct {
	// Directory is where cache entries are stored. Default:
	// $HOME/.cache/conveyor.
	Directory string `yaml:"directory"`

	// Compression selects the entry compression algorithm: "none",
	// "lz4", or "zstd". Default: zstd.
	Compression string `yaml:"compression"`
}

// ExecutionConfig configures engine timeouts and parallelism. All
// durations use time.ParseDuration syntax.
type ExecutionConfig struct {
	// MaxParallel bounds the number of concurrently running jobs.
	// Zero means unlimited (one worker per job).
	MaxParallel int `yaml:"max_parallel"`

	// RunTimeout bounds one pipeline run. When it expires, still-
	// running jobs are cancelled and forced to a terminal state.
	// Default: 1h.
	RunTimeout string `yaml:"run_timeout"`

	// StepTimeout applies to steps that declare no timeout of their
	// own. Default: 5m.
	StepTimeout string `yaml:"step_timeout"`

	// GracePeriod is the default SIGTERM→SIGKILL window for
	// cancelled command steps that declare none. Default: 10s.
	GracePeriod string `yaml:"grace_period"`
}

// ActionsConfig configures the built-in action handlers.
type ActionsConfig struct {
	// RepositoryRoot is the local path the checkout action copies
	// the working tree from. The real fetch mechanism is an external
	// collaborator; the built-in handler populates the job workdir
	// from this path.
	RepositoryRoot string `yaml:"repository_root"`

	// ToolchainRoot is the directory the install-toolchain action
	// resolves toolchains under: <root>/<name>/bin is prepended to
	// the job's PATH.
	ToolchainRoot string `yaml:"toolchain_root"`
}

// Default returns the built-in configuration used when no config file
// is given.
func Default() *Config {
	cacheDir := ".conveyor-cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".cache", "conveyor")
	}
	return &Config{
		Cache: CacheConfig{
			Directory:   cacheDir,
			Compression: "zstd",
		},
		Execution: ExecutionConfig{
			RunTimeout:  "1h",
			StepTimeout: "5m",
			GracePeriod: "10s",
		},
	}
}

// Load reads the YAML config at path. When path is empty, the
// CONVEYOR_CONFIG environment variable is consulted; when that is
// also empty, Default() is returned. Missing fields fall back to
// their defaults; unknown fields are an error (they are almost
// always typos).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONVEYOR_CONFIG")
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	configuration := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(configuration); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return configuration, nil
}

// Validate checks that every parseable field actually parses.
func (c *Config) Validate() error {
	if _, err := cachestore.ParseCompressionTag(c.Cache.Compression); err != nil {
		return fmt.Errorf("cache.compression: %w", err)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"execution.run_timeout", c.Execution.RunTimeout},
		{"execution.step_timeout", c.Execution.StepTimeout},
		{"execution.grace_period", c.Execution.GracePeriod},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}
	if c.Execution.MaxParallel < 0 {
		return fmt.Errorf("execution.max_parallel: must be >= 0, got %d", c.Execution.MaxParallel)
	}
	return nil
}

// Duration parses a duration field that Validate has already checked,
// substituting fallback for the empty string.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
