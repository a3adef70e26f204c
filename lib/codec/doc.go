// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Conveyor's standard CBOR encoding configuration.
//
// Conveyor uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: pipeline declarations (JSONC on
//     disk), trigger event files, the JSONL run log, and CLI output.
//   - CBOR for internal on-disk formats: cache entry envelopes in
//     lib/cachestore.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Conveyor package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes — which is what makes cache entries byte-stable across saves
// of identical content.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Types serialized as CBOR carry `cbor` struct tags; types that may be
// serialized as both JSON and CBOR carry only `json` tags (fxamacker/
// cbor reads `json` tags as fallback). Never use both tags on one field.
package codec
