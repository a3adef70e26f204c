// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"fmt"
	"io"

	"github.com/conveyor-foundation/conveyor/lib/codec"
)

// envelopeVersion is the current on-disk entry format version.
// Entries with a newer version than the running code are treated as
// corrupt (and therefore as misses) rather than misread.
const envelopeVersion = 1

// envelope is the on-disk CBOR wrapper around a cache payload. The
// content hash covers the uncompressed payload, so corruption in
// either the compressed bytes or the decompressor's output is caught
// before the payload reaches the engine.
type envelope struct {
	Version          int            `cbor:"version"`
	Key              string         `cbor:"key"`
	Compression      CompressionTag `cbor:"compression"`
	UncompressedSize int64          `cbor:"uncompressed_size"`
	ContentHash      Hash           `cbor:"content_hash"`
	Payload          []byte         `cbor:"payload"`
}

// encodeEntry compresses payload with the requested tag and streams it
// to w in a CBOR envelope. Deterministic: identical payload, key, and
// tag always produce identical bytes (CBOR Core Deterministic Encoding,
// no timestamps in the envelope).
func encodeEntry(w io.Writer, key string, payload []byte, tag CompressionTag) error {
	compressed, appliedTag, err := Compress(payload, tag)
	if err != nil {
		return fmt.Errorf("compressing entry for key %q: %w", key, err)
	}

	wrapped := envelope{
		Version:          envelopeVersion,
		Key:              key,
		Compression:      appliedTag,
		UncompressedSize: int64(len(payload)),
		ContentHash:      HashEntry(payload),
		Payload:          compressed,
	}

	if err := codec.NewEncoder(w).Encode(wrapped); err != nil {
		return fmt.Errorf("encoding entry envelope for key %q: %w", key, err)
	}
	return nil
}

// decodeEntry reads an entry envelope from r, verifies it, and returns
// the uncompressed payload. Any defect (undecodable envelope,
// unsupported version, key mismatch, decompression failure, content
// hash mismatch) comes back as a *CorruptEntryError so callers can
// degrade to a miss.
func decodeEntry(r io.Reader, key string) ([]byte, error) {
	corrupt := func(format string, args ...any) error {
		return &CorruptEntryError{Key: key, Reason: fmt.Sprintf(format, args...)}
	}

	var wrapped envelope
	if err := codec.NewDecoder(r).Decode(&wrapped); err != nil {
		return nil, corrupt("undecodable envelope: %v", err)
	}
	if wrapped.Version != envelopeVersion {
		return nil, corrupt("unsupported envelope version %d", wrapped.Version)
	}
	if wrapped.Key != key {
		// A key collision in the filename hash, or an entry written
		// under a renamed key. Either way the content is not what the
		// caller asked for.
		return nil, corrupt("envelope key %q does not match", wrapped.Key)
	}

	payload, err := Decompress(wrapped.Payload, wrapped.Compression, int(wrapped.UncompressedSize))
	if err != nil {
		return nil, corrupt("decompression failed: %v", err)
	}
	if HashEntry(payload) != wrapped.ContentHash {
		return nil, corrupt("content hash mismatch")
	}

	return payload, nil
}
