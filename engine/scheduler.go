// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// Scheduler fans a pipeline's jobs out concurrently and aggregates
// their outcomes. Jobs have no dependency edges, so every job starts
// as soon as a worker slot is free; the scheduler always waits for
// every job to reach a terminal state before returning, even when
// some have failed, so the aggregate enumerates one result per
// scheduled job.
type Scheduler struct {
	// Runner executes individual jobs. Required.
	Runner *JobRunner

	// Logger receives scheduling diagnostics. Required.
	Logger *slog.Logger

	// Clock drives the run timeout. Required; clock.Real() outside
	// tests.
	Clock clock.Clock

	// RunLog receives the start and verdict entries. May be nil.
	RunLog *RunLog

	// MaxParallel bounds concurrently running jobs. Zero means one
	// worker per job.
	MaxParallel int

	// RunTimeout bounds the whole run. When it expires, running jobs
	// are cancelled and report JobCancelled. Zero means no timeout.
	RunTimeout time.Duration

	// CancelOnFailure, when set, cancels the remaining jobs as soon
	// as one fails. The default lets every job run to completion so
	// one broken job does not hide the others' outcomes.
	CancelOnFailure bool
}

// Run executes every job of the pipeline for the given trigger event
// (nil for manual runs) and returns the aggregated result, with
// per-job outcomes in declaration order. Cancelling ctx cancels the
// run; cancelled jobs still appear in the aggregate with
// JobCancelled.
func (s *Scheduler) Run(ctx context.Context, decl *pipeline.Pipeline, event *pipeline.TriggerEvent) *pipeline.PipelineResult {
	startTime := s.Clock.Now()
	s.RunLog.WriteStart(decl.Name, len(decl.Jobs))
	s.Logger.Info("pipeline run starting", "pipeline", decl.Name, "jobs", len(decl.Jobs))

	runContext, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.RunTimeout > 0 {
		timer := s.Clock.AfterFunc(s.RunTimeout, func() {
			s.Logger.Warn("run timeout reached, cancelling remaining jobs", "pipeline", decl.Name, "timeout", s.RunTimeout)
			cancel()
		})
		defer timer.Stop()
	}

	var semaphore chan struct{}
	if s.MaxParallel > 0 {
		semaphore = make(chan struct{}, s.MaxParallel)
	}

	results := make([]pipeline.RunResult, len(decl.Jobs))
	var group sync.WaitGroup
	for i, job := range decl.Jobs {
		group.Add(1)
		go func(index int, job pipeline.Job) {
			defer group.Done()

			if semaphore != nil {
				select {
				case semaphore <- struct{}{}:
					defer func() { <-semaphore }()
				case <-runContext.Done():
					// Run reports the cancellation as a result.
				}
			}

			results[index] = s.Runner.Run(runContext, job, event)
			if s.CancelOnFailure && results[index].Status != pipeline.JobSuccess {
				cancel()
			}
		}(i, job)
	}
	group.Wait()

	aggregate := &pipeline.PipelineResult{
		Pipeline:   decl.Name,
		Verdict:    pipeline.VerdictSucceeded,
		Jobs:       results,
		DurationMS: s.Clock.Now().Sub(startTime).Milliseconds(),
	}
	for _, result := range results {
		if result.Status != pipeline.JobSuccess {
			aggregate.Verdict = pipeline.VerdictFailed
		}
	}

	s.RunLog.WriteVerdict(aggregate)
	s.Logger.Info("pipeline run finished",
		"pipeline", decl.Name,
		"verdict", aggregate.Verdict,
		"failed_jobs", aggregate.FailedJobs(),
	)
	return aggregate
}
