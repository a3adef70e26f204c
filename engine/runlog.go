// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// RunLog writes structured JSONL to a file during a pipeline run.
// Each line is an independent JSON object, which makes the log:
//
//   - Crash-safe: a kill mid-run preserves all completed job and step
//     results. A single JSON document would be truncated and
//     unparseable.
//   - Streamable: a caller can tail the file for live progress
//     instead of waiting for the final verdict.
//
// A nil *RunLog is a valid no-op log — every method is nil-safe, so
// callers never branch on whether logging is enabled. Writes are
// serialized internally because job goroutines log concurrently.
type RunLog struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewRunLog creates a JSONL run log at the given path, truncating any
// existing content.
func NewRunLog(path string, logger *slog.Logger) (*RunLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run log %s: %w", path, err)
	}
	return &RunLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close flushes and closes the run log file.
func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// WriteStart records the beginning of a pipeline run.
func (l *RunLog) WriteStart(pipelineName string, jobCount int) {
	if l == nil {
		return
	}
	l.write(runStartEntry{
		Type:      "start",
		Pipeline:  pipelineName,
		JobCount:  jobCount,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteStep records the outcome of one executed step.
func (l *RunLog) WriteStep(job string, index int, result pipeline.StepResult) {
	if l == nil {
		return
	}
	l.write(runStepEntry{
		Type:       "step",
		Job:        job,
		Index:      index,
		Name:       result.Name,
		Status:     result.Status,
		ExitCode:   result.ExitCode,
		DurationMS: result.DurationMS,
		Error:      result.Error,
	})
}

// WriteJob records a job's terminal outcome.
func (l *RunLog) WriteJob(result pipeline.RunResult) {
	if l == nil {
		return
	}
	l.write(runJobEntry{
		Type:          "job",
		Job:           result.Job,
		Status:        result.Status,
		FailedStep:    result.FailedStep,
		CacheRestored: result.CacheRestored,
		DurationMS:    result.DurationMS,
		Error:         result.Error,
	})
}

// WriteVerdict records the final pipeline verdict. Always the last
// line of a completed run.
func (l *RunLog) WriteVerdict(result *pipeline.PipelineResult) {
	if l == nil {
		return
	}
	l.write(runVerdictEntry{
		Type:       "verdict",
		Pipeline:   result.Pipeline,
		Verdict:    result.Verdict,
		FailedJobs: result.FailedJobs(),
		DurationMS: result.DurationMS,
	})
}

func (l *RunLog) write(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write run log entry", "error", err)
		return
	}
	// Sync after each line so that partial results survive a crash
	// and are visible to readers immediately.
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync run log", "error", err)
	}
}

// JSONL entry types. Separate structs (rather than one with omitempty
// everywhere) keep the wire format explicit.

type runStartEntry struct {
	Type      string `json:"type"`
	Pipeline  string `json:"pipeline"`
	JobCount  int    `json:"job_count"`
	Timestamp string `json:"timestamp"`
}

type runStepEntry struct {
	Type       string              `json:"type"`
	Job        string              `json:"job"`
	Index      int                 `json:"index"`
	Name       string              `json:"name"`
	Status     pipeline.StepStatus `json:"status"`
	ExitCode   int                 `json:"exit_code"`
	DurationMS int64               `json:"duration_ms"`
	Error      string              `json:"error,omitempty"`
}

type runJobEntry struct {
	Type          string             `json:"type"`
	Job           string             `json:"job"`
	Status        pipeline.JobStatus `json:"status"`
	FailedStep    int                `json:"failed_step"`
	CacheRestored bool               `json:"cache_restored"`
	DurationMS    int64              `json:"duration_ms"`
	Error         string             `json:"error,omitempty"`
}

type runVerdictEntry struct {
	Type       string           `json:"type"`
	Pipeline   string           `json:"pipeline"`
	Verdict    pipeline.Verdict `json:"verdict"`
	FailedJobs []string         `json:"failed_jobs,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}
