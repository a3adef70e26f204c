// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conveyor-foundation/conveyor/cmd/conveyor/cli"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func testConfig(t *testing.T) string {
	t.Helper()
	return writeFile(t, "conveyor.yaml", "cache:\n  directory: "+filepath.Join(t.TempDir(), "cache")+"\n")
}

func testRunLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const passingDeclaration = `{
	// Smoke-test pipeline.
	"name": "smoke",
	"triggers": ["push"],
	"jobs": [
		{"name": "a", "steps": [{"name": "ok", "run": "true"}]},
		{"name": "b", "steps": [{"name": "ok", "run": "echo fine"}]},
	],
}`

const failingDeclaration = `{
	"name": "smoke",
	"jobs": [
		{"name": "good", "steps": [{"name": "ok", "run": "true"}]},
		{"name": "bad", "steps": [{"name": "boom", "run": "exit 4"}]},
	],
}`

func TestRootVersionFlag(t *testing.T) {
	if err := rootCommand().Execute(context.Background(), []string{"--version"}, testRunLogger()); err != nil {
		t.Fatalf("--version: %v", err)
	}

	// A bare invocation still demands a subcommand.
	err := rootCommand().Execute(context.Background(), nil, testRunLogger())
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Fatalf("bare invocation error = %v", err)
	}
}

func TestExecuteRunSucceeds(t *testing.T) {
	path := writeFile(t, "ci.pipeline.json", passingDeclaration)
	err := executeRun(context.Background(), path, runOptions{configPath: testConfig(t)}, testRunLogger())
	if err != nil {
		t.Fatalf("executeRun: %v", err)
	}
}

func TestExecuteRunFailingJobExitsNonZero(t *testing.T) {
	path := writeFile(t, "ci.pipeline.json", failingDeclaration)
	err := executeRun(context.Background(), path, runOptions{configPath: testConfig(t)}, testRunLogger())
	if err == nil {
		t.Fatal("expected non-nil error for failed pipeline")
	}
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) {
		t.Fatalf("error type = %T, want *cli.ExitError", err)
	}
	if exitError.Code != 1 {
		t.Errorf("exit code = %d, want 1", exitError.Code)
	}
}

func TestExecuteRunJobSelection(t *testing.T) {
	// Selecting only the good job out of a declaration with a broken
	// one must succeed.
	path := writeFile(t, "ci.pipeline.json", failingDeclaration)
	options := runOptions{configPath: testConfig(t), jobs: []string{"good"}}
	if err := executeRun(context.Background(), path, options, testRunLogger()); err != nil {
		t.Fatalf("executeRun: %v", err)
	}

	// Selecting an undeclared job is an error, not an empty run.
	options.jobs = []string{"missing"}
	err := executeRun(context.Background(), path, options, testRunLogger())
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("undeclared job selection error = %v", err)
	}
}

func TestExecuteRunInvalidDeclaration(t *testing.T) {
	path := writeFile(t, "ci.pipeline.json", `{"name": "broken", "jobs": []}`)
	err := executeRun(context.Background(), path, runOptions{configPath: testConfig(t)}, testRunLogger())
	if err == nil {
		t.Fatal("expected error for invalid declaration")
	}
	if !strings.Contains(err.Error(), "at least one job") {
		t.Errorf("error %q does not carry the validation issue", err)
	}
}

func TestExecuteRunEventGating(t *testing.T) {
	path := writeFile(t, "ci.pipeline.json", passingDeclaration)
	event := writeFile(t, "event.json", `{"ref": "refs/heads/main", "commit": "abc", "kind": "pull_request"}`)

	// The declaration triggers on push only.
	options := runOptions{configPath: testConfig(t), eventPath: event}
	err := executeRun(context.Background(), path, options, testRunLogger())
	if err == nil || !strings.Contains(err.Error(), "does not trigger") {
		t.Fatalf("ineligible event error = %v", err)
	}

	pushEvent := writeFile(t, "push.json", `{"ref": "refs/heads/main", "commit": "abc", "kind": "push"}`)
	options.eventPath = pushEvent
	if err := executeRun(context.Background(), path, options, testRunLogger()); err != nil {
		t.Fatalf("eligible event run: %v", err)
	}
}

func TestExecuteRunWritesRunLog(t *testing.T) {
	path := writeFile(t, "ci.pipeline.json", passingDeclaration)
	logPath := filepath.Join(t.TempDir(), "run.jsonl")
	options := runOptions{configPath: testConfig(t), resultLogPath: logPath}
	if err := executeRun(context.Background(), path, options, testRunLogger()); err != nil {
		t.Fatalf("executeRun: %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading run log: %v", err)
	}
	if !strings.Contains(string(data), `"verdict"`) {
		t.Error("run log has no verdict entry")
	}
}
