// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import "errors"

// ErrNotFound is returned by Get when no entry exists for a key. A
// miss is an expected outcome, not a failure — callers degrade to the
// path they would take with an empty cache.
var ErrNotFound = errors.New("cachestore: entry not found")

// CorruptEntryError is returned by Get when an entry exists but its
// envelope cannot be decoded or its content hash does not match. The
// cache gate treats it exactly like a miss; the reason exists for the
// log line.
type CorruptEntryError struct {
	Key    string
	Reason string
}

func (e *CorruptEntryError) Error() string {
	return "cachestore: corrupt entry for key " + e.Key + ": " + e.Reason
}

// Store is keyed blob storage: get(key) → bytes, put(key, bytes).
// Implementations must make Put atomic per key — a concurrent reader
// sees either the previous blob or the new one, never a torn write.
type Store interface {
	// Get returns the blob stored under key. Returns ErrNotFound
	// when no entry exists, or a *CorruptEntryError when the entry
	// cannot be read back intact.
	Get(key string) ([]byte, error)

	// Put stores the blob under key, replacing any previous entry.
	Put(key string, data []byte) error

	// Delete removes the entry under key. Deleting a missing entry
	// is not an error.
	Delete(key string) error
}
