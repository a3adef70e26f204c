// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/cachestore"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

func testScheduler(t *testing.T, store cachestore.Store) *Scheduler {
	t.Helper()
	return &Scheduler{
		Runner: testRunner(t, store),
		Logger: testLogger(),
		Clock:  clock.Real(),
	}
}

func commandJob(name, command string) pipeline.Job {
	return pipeline.Job{
		Name:  name,
		Steps: []pipeline.Step{{Name: "main", Run: command, GracePeriod: "0s"}},
	}
}

func TestSchedulerAllJobsRunToCompletion(t *testing.T) {
	t.Parallel()
	scheduler := testScheduler(t, nil)

	// One broken job among five; the others still finish and report.
	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("test", "true"),
			commandJob("fmt", "exit 1"),
			commandJob("clippy", "true"),
			commandJob("docs", "true"),
			commandJob("coverage", "true"),
		},
	}
	result := scheduler.Run(context.Background(), decl, nil)

	if result.Verdict != pipeline.VerdictFailed {
		t.Errorf("verdict = %q, want failed", result.Verdict)
	}
	if len(result.Jobs) != 5 {
		t.Fatalf("job results = %d, want 5", len(result.Jobs))
	}
	// Results hold declaration order regardless of completion order.
	for i, want := range []string{"test", "fmt", "clippy", "docs", "coverage"} {
		if result.Jobs[i].Job != want {
			t.Errorf("jobs[%d] = %q, want %q", i, result.Jobs[i].Job, want)
		}
	}
	for _, job := range result.Jobs {
		want := pipeline.JobSuccess
		if job.Job == "fmt" {
			want = pipeline.JobFailure
		}
		if job.Status != want {
			t.Errorf("job %q status = %q, want %q", job.Job, job.Status, want)
		}
	}
	if failed := result.FailedJobs(); len(failed) != 1 || failed[0] != "fmt" {
		t.Errorf("failed jobs = %v, want [fmt]", failed)
	}
	if err := result.Validate(); err != nil {
		t.Errorf("result does not validate: %v", err)
	}
}

func TestSchedulerAllSucceed(t *testing.T) {
	t.Parallel()
	scheduler := testScheduler(t, nil)

	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("a", "true"),
			commandJob("b", "true"),
		},
	}
	result := scheduler.Run(context.Background(), decl, nil)
	if result.Verdict != pipeline.VerdictSucceeded {
		t.Errorf("verdict = %q, want succeeded", result.Verdict)
	}
	if failed := result.FailedJobs(); failed != nil {
		t.Errorf("failed jobs = %v, want none", failed)
	}
}

func TestSchedulerCancelOnFailure(t *testing.T) {
	t.Parallel()
	scheduler := testScheduler(t, nil)
	scheduler.CancelOnFailure = true

	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("fails", "sleep 0.1; exit 1"),
			commandJob("slow", "sleep 30"),
		},
	}
	startTime := time.Now()
	result := scheduler.Run(context.Background(), decl, nil)

	if elapsed := time.Since(startTime); elapsed > 10*time.Second {
		t.Fatalf("run took %v, failure did not cancel the slow job", elapsed)
	}
	if result.Verdict != pipeline.VerdictFailed {
		t.Errorf("verdict = %q, want failed", result.Verdict)
	}
	if result.Jobs[1].Status != pipeline.JobCancelled {
		t.Errorf("slow job status = %q, want cancelled", result.Jobs[1].Status)
	}
}

func TestSchedulerIndependentFailuresByDefault(t *testing.T) {
	t.Parallel()
	scheduler := testScheduler(t, nil)

	// Without CancelOnFailure a failing job must not disturb the
	// others.
	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("fails", "exit 1"),
			commandJob("survives", "sleep 0.2; echo done"),
		},
	}
	result := scheduler.Run(context.Background(), decl, nil)
	if result.Jobs[1].Status != pipeline.JobSuccess {
		t.Errorf("surviving job status = %q, want success", result.Jobs[1].Status)
	}
}

func TestSchedulerRunTimeout(t *testing.T) {
	t.Parallel()
	scheduler := testScheduler(t, nil)
	scheduler.RunTimeout = 200 * time.Millisecond

	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("quick", "true"),
			commandJob("stuck", "sleep 30"),
		},
	}
	startTime := time.Now()
	result := scheduler.Run(context.Background(), decl, nil)

	if elapsed := time.Since(startTime); elapsed > 10*time.Second {
		t.Fatalf("run took %v, timeout did not cancel the stuck job", elapsed)
	}
	if result.Verdict != pipeline.VerdictFailed {
		t.Errorf("verdict = %q, want failed", result.Verdict)
	}
	if result.Jobs[0].Status != pipeline.JobSuccess {
		t.Errorf("quick job status = %q, want success", result.Jobs[0].Status)
	}
	if result.Jobs[1].Status != pipeline.JobCancelled {
		t.Errorf("stuck job status = %q, want cancelled", result.Jobs[1].Status)
	}
}

func TestSchedulerMaxParallel(t *testing.T) {
	t.Parallel()
	scheduler := testScheduler(t, nil)
	scheduler.MaxParallel = 1

	// Each job takes a lock file and fails if another job holds it.
	// With MaxParallel=1 the jobs serialize and every run succeeds.
	lock := filepath.Join(t.TempDir(), "lock")
	command := "test ! -e " + lock + " && touch " + lock + " && sleep 0.1 && rm " + lock
	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("a", command),
			commandJob("b", command),
			commandJob("c", command),
		},
	}
	result := scheduler.Run(context.Background(), decl, nil)
	if result.Verdict != pipeline.VerdictSucceeded {
		t.Fatalf("verdict = %q, jobs overlapped despite MaxParallel=1", result.Verdict)
	}
}

// countingStore wraps a Store and counts writes.
type countingStore struct {
	cachestore.Store

	mu   sync.Mutex
	puts int
}

func (s *countingStore) Put(key string, payload []byte) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Store.Put(key, payload)
}

func TestSchedulerEveryJobSavesItsCache(t *testing.T) {
	t.Parallel()
	store := &countingStore{Store: testStore(t)}
	scheduler := testScheduler(t, store)

	jobs := make([]pipeline.Job, 0, 5)
	for _, name := range []string{"test", "fmt", "clippy", "docs", "coverage"} {
		job := commandJob(name, "mkdir -p $CONVEYOR_ROOT/target")
		job.Cache = &pipeline.CacheSpec{Key: "deps-${JOB}", Paths: []string{"target"}}
		jobs = append(jobs, job)
	}
	decl := &pipeline.Pipeline{Name: "ci", Jobs: jobs}

	result := scheduler.Run(context.Background(), decl, nil)
	if result.Verdict != pipeline.VerdictSucceeded {
		t.Fatalf("verdict = %q (results: %+v)", result.Verdict, result.FailedJobs())
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.puts != 5 {
		t.Errorf("cache writes = %d, want one per job", store.puts)
	}
}

func TestSchedulerRunLog(t *testing.T) {
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "run.jsonl")
	runLog, err := NewRunLog(logPath, testLogger())
	if err != nil {
		t.Fatalf("NewRunLog: %v", err)
	}

	scheduler := testScheduler(t, nil)
	scheduler.RunLog = runLog
	scheduler.Runner.RunLog = runLog

	decl := &pipeline.Pipeline{
		Name: "ci",
		Jobs: []pipeline.Job{
			commandJob("ok", "true"),
			commandJob("bad", "exit 2"),
		},
	}
	scheduler.Run(context.Background(), decl, nil)
	if err := runLog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("opening run log: %v", err)
	}
	defer file.Close()

	var types []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("run log line is not JSON: %v", err)
		}
		types = append(types, entry.Type)
	}
	if len(types) == 0 {
		t.Fatal("run log is empty")
	}
	if types[0] != "start" {
		t.Errorf("first entry type = %q, want start", types[0])
	}
	if types[len(types)-1] != "verdict" {
		t.Errorf("last entry type = %q, want verdict", types[len(types)-1])
	}
	counts := make(map[string]int)
	for _, entryType := range types {
		counts[entryType]++
	}
	if counts["job"] != 2 {
		t.Errorf("job entries = %d, want 2", counts["job"])
	}
	if counts["step"] != 2 {
		t.Errorf("step entries = %d, want 2", counts["step"])
	}
}
