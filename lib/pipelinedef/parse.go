// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelinedef provides parsing, validation, and serialization
// for Conveyor pipeline declarations. A declaration names a set of
// independent jobs (each an ordered step list, each step an action
// reference or a shell command) triggered by a repository event.
//
// Declarations are authored on disk as JSONC files (JSON extended with
// comments and trailing commas). This package handles both plain JSON
// and JSONC.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → pipeline.Pipeline
//  2. Validate: structural checks (Uses XOR Run, unique names, etc.)
//  3. hand the declaration to the engine's scheduler
//
// Serialize re-emits canonical JSON. Parsing a declaration and
// serializing it preserves job order, step order, and all parameters —
// jobs and steps are JSON arrays, never maps.
package pipelinedef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Pipeline.
func Parse(data []byte) (*pipeline.Pipeline, error) {
	stripped := jsonc.ToJSON(data)

	var declaration pipeline.Pipeline
	if err := json.Unmarshal(stripped, &declaration); err != nil {
		return nil, fmt.Errorf("parsing pipeline declaration: %w", err)
	}

	return &declaration, nil
}

// ReadFile reads a JSONC declaration file from disk and parses it.
// Returns a descriptive error if the file cannot be read or the JSON
// is malformed.
func ReadFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	declaration, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return declaration, nil
}

// Serialize emits the declaration as canonical two-space-indented
// JSON with a trailing newline. Comments from the JSONC source are not
// preserved — serialization is for machine round-trips, not authoring.
func Serialize(declaration *pipeline.Pipeline) ([]byte, error) {
	data, err := json.MarshalIndent(declaration, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing pipeline declaration: %w", err)
	}
	return append(data, '\n'), nil
}

// NameFromPath extracts a pipeline name from a file path by stripping
// the directory prefix and the file extension. For example,
// "deploy/pipelines/rust-library-ci.jsonc" returns "rust-library-ci".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}
