// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Cache content hashes, key digests,
// and fingerprints are all this size.
type Hash [32]byte

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same input bytes produce different hashes in
// different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed constants — changing them
// invalidates every existing cache entry in that domain. The byte
// values are the ASCII encoding of the domain name, zero-padded to 32
// bytes, so the keys stay inspectable in hex dumps.
var (
	entryDomainKey = domainKey{
		'c', 'o', 'n', 'v', 'e', 'y', 'o', 'r', '.', 'c', 'a', 'c', 'h', 'e', '.',
		'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	keyDomainKey = domainKey{
		'c', 'o', 'n', 'v', 'e', 'y', 'o', 'r', '.', 'c', 'a', 'c', 'h', 'e', '.',
		'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	fingerprintDomainKey = domainKey{
		'c', 'o', 'n', 'v', 'e', 'y', 'o', 'r', '.', 'c', 'a', 'c', 'h', 'e', '.',
		'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0,
	}
)

func keyedHash(key domainKey, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("cachestore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

// HashEntry computes the entry-domain hash of a blob. Stored in the
// entry envelope and verified on read to detect corruption.
func HashEntry(data []byte) Hash {
	return keyedHash(entryDomainKey, data)
}

// HashKey computes the key-domain hash of a cache key string. The
// filesystem store uses it as the entry filename, which keeps
// arbitrary key text (slashes, ${} expansions gone wrong) out of
// paths.
func HashKey(key string) Hash {
	return keyedHash(keyDomainKey, []byte(key))
}

// FingerprintFiles computes the fingerprint-domain hash over the named
// files, resolved relative to root. Files are hashed in sorted path
// order, each as its relative path followed by a NUL and its contents,
// so renames and content changes both move the fingerprint. A missing
// file contributes its path with empty content rather than an error —
// a fresh checkout without a lock file still derives a stable key and
// simply pays the full installation cost on the resulting miss.
func FingerprintFiles(root string, files []string) (Hash, error) {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("cachestore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	for _, file := range sorted {
		hasher.Write([]byte(file))
		hasher.Write([]byte{0})

		path := filepath.Join(root, file)
		handle, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Hash{}, fmt.Errorf("fingerprinting %s: %w", path, err)
		}
		if _, err := io.Copy(hasher, handle); err != nil {
			handle.Close()
			return Hash{}, fmt.Errorf("fingerprinting %s: %w", path, err)
		}
		handle.Close()
	}

	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result, nil
}
