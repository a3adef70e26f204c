// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// TriggerSource delivers repository events that start pipeline runs.
// Event production (webhook listening, polling, authentication) is an
// external collaborator's job; the engine only consumes validated
// events from a source.
type TriggerSource interface {
	// Next blocks until an event is available or ctx is done. Returns
	// io.EOF when the source is exhausted.
	Next(ctx context.Context) (pipeline.TriggerEvent, error)
}

// StaticSource is a TriggerSource over a fixed event list. It backs
// single-shot CLI runs and tests.
type StaticSource struct {
	events []pipeline.TriggerEvent
	next   int
}

// NewStaticSource builds a source that yields the given events in
// order, then io.EOF.
func NewStaticSource(events ...pipeline.TriggerEvent) *StaticSource {
	return &StaticSource{events: events}
}

// Next implements TriggerSource.
func (s *StaticSource) Next(ctx context.Context) (pipeline.TriggerEvent, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.TriggerEvent{}, err
	}
	if s.next >= len(s.events) {
		return pipeline.TriggerEvent{}, io.EOF
	}
	event := s.events[s.next]
	s.next++
	return event, nil
}

// ReadEventFile parses a trigger event from a JSON file and validates
// it.
func ReadEventFile(path string) (pipeline.TriggerEvent, error) {
	var event pipeline.TriggerEvent
	data, err := os.ReadFile(path)
	if err != nil {
		return event, fmt.Errorf("reading event file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("parsing event file %s: %w", path, err)
	}
	if err := event.Validate(); err != nil {
		return event, fmt.Errorf("event file %s: %w", path, err)
	}
	return event, nil
}

// Eligible reports whether the event's kind is one of the pipeline's
// declared triggers. A pipeline with no declared triggers is eligible
// for any event: declarations without a triggers list are run
// manually, and a manual run should not be refused.
func Eligible(decl *pipeline.Pipeline, event pipeline.TriggerEvent) bool {
	if len(decl.Triggers) == 0 {
		return true
	}
	for _, kind := range decl.Triggers {
		if kind == event.Kind {
			return true
		}
	}
	return false
}
