// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package cachestore provides the keyed blob storage behind the
// engine's cache gate. A Store maps opaque string keys to opaque
// byte blobs; no schema is imposed on the bytes by the interface.
//
// The filesystem implementation (DirStore) adds an on-disk envelope
// around each blob: a CBOR header carrying the compression tag, the
// uncompressed size, and a BLAKE3 content hash. The hash detects
// corrupt entries at read time so callers can treat them as misses —
// the cache is never on the correctness-critical path.
//
// Writes are atomic per key (temp file + rename), which is the only
// locking discipline the engine needs: concurrent jobs never share a
// key within one run because every key includes the job's identity.
package cachestore
