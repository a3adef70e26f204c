// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts time operations for testability. Production code
// injects Real(); tests inject Fake() with deterministic time control.
//
// Engine code that needs time.Now, time.After, time.AfterFunc, or
// time.Sleep should accept a Clock (or be a method on a struct with a
// Clock field) instead of calling the time package directly. The
// scheduler's run deadline is the main consumer.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f in its own
	// goroutine (real) or synchronously during Advance (fake).
	// Returns a Timer whose Stop cancels the pending call. The
	// Timer's C field is nil, matching time.AfterFunc.
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Timer represents a scheduled event created by AfterFunc. C is nil
// for AfterFunc timers, matching the time package.
type Timer struct {
	// C delivers the timer event. Nil for AfterFunc timers.
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call stops
// the timer, false if the timer has already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
