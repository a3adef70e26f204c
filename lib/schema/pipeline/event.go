// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
)

// EventKind classifies the repository event that triggered a run.
type EventKind string

const (
	// EventPush is a branch push event.
	EventPush EventKind = "push"

	// EventPullRequest is a pull request open/update event.
	EventPullRequest EventKind = "pull_request"
)

// Known reports whether the kind is one the engine understands.
func (k EventKind) Known() bool {
	return k == EventPush || k == EventPullRequest
}

// TriggerEvent is the repository event that caused a pipeline run. It
// is supplied by the trigger listener — an external collaborator. The
// engine does not validate event authenticity; that is the listener's
// responsibility.
type TriggerEvent struct {
	// Ref is the repository ref the event concerns (e.g.,
	// "refs/heads/main").
	Ref string `json:"ref"`

	// Commit is the commit ID the run should build.
	Commit string `json:"commit"`

	// Kind is the event classification (push or pull_request).
	Kind EventKind `json:"kind"`
}

// Validate checks that the event carries the minimum fields the
// engine needs.
func (e *TriggerEvent) Validate() error {
	if e.Ref == "" {
		return errors.New("trigger event: ref is required")
	}
	if e.Commit == "" {
		return errors.New("trigger event: commit is required")
	}
	if e.Kind == "" {
		return errors.New("trigger event: kind is required")
	}
	if !e.Kind.Known() {
		return fmt.Errorf("trigger event: unknown kind %q", e.Kind)
	}
	return nil
}
