// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// entrySuffix is the filename suffix for cache entry files.
const entrySuffix = ".cache"

// DirStore is a filesystem Store: one file per key under a root
// directory, named by the key-domain hash of the key. Entries are
// wrapped in the CBOR envelope (compression tag, sizes, content hash)
// and written atomically via temp file + rename, so a crashed writer
// never leaves a torn entry behind — at worst an orphaned temp file.
type DirStore struct {
	root        string
	compression CompressionTag
}

// NewDirStore opens (creating if needed) a directory store rooted at
// path. Entries written through Put are compressed with the given tag.
func NewDirStore(path string, compression CompressionTag) (*DirStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cachestore: directory path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &DirStore{root: path, compression: compression}, nil
}

// Get returns the payload stored under key. A missing file is
// ErrNotFound; a file that fails envelope verification is a
// *CorruptEntryError.
func (s *DirStore) Get(key string) ([]byte, error) {
	file, err := os.Open(s.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading cache entry for key %q: %w", key, err)
	}
	defer file.Close()
	return decodeEntry(file, key)
}

// Put stores payload under key, replacing any previous entry. The
// write is atomic per key: the envelope is streamed to a temp file in
// the same directory, synced, then renamed over the final path.
func (s *DirStore) Put(key string, payload []byte) error {
	temp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return fmt.Errorf("creating temp file for key %q: %w", key, err)
	}
	tempPath := temp.Name()

	// Clean up the temp file on any failure path below.
	fail := func(stage string, err error) error {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("%s for key %q: %w", stage, key, err)
	}

	if err := encodeEntry(temp, key, payload, s.compression); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}
	if err := temp.Sync(); err != nil {
		return fail("syncing cache entry", err)
	}
	if err := temp.Close(); err != nil {
		return fail("closing cache entry", err)
	}
	if err := os.Rename(tempPath, s.entryPath(key)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("publishing cache entry for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key. Deleting a missing entry is not
// an error.
func (s *DirStore) Delete(key string) error {
	err := os.Remove(s.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting cache entry for key %q: %w", key, err)
	}
	return nil
}

// Clear removes every entry (and any orphaned temp file) in the
// store's directory. The directory itself is kept.
func (s *DirStore) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("listing cache directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, entrySuffix) && !strings.HasPrefix(name, ".put-") {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, name)); err != nil {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	return nil
}

// entryPath maps a key to its file path: the hex key-domain hash plus
// the entry suffix, inside the store root.
func (s *DirStore) entryPath(key string) string {
	return filepath.Join(s.root, HashKey(key).Hex()+entrySuffix)
}
