// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests. Real() wraps
// the time package; Fake() provides a clock that advances only under
// test control, so deadline behavior (the scheduler's bounded wait)
// can be tested without real sleeps.
package clock
