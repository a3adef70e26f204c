// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirStorePutGet(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir(), CompressionZstd)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	payload := bytes.Repeat([]byte("registry contents\n"), 100)
	if err := store.Put("cargo-test-abc", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	restored, err := store.Get("cargo-test-abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(restored, payload) {
		t.Error("restored payload differs from stored payload")
	}
}

// TestDirStoreIdempotentRestore pins the round-trip property: an entry
// saved and restored under the same key is byte-identical, repeatedly.
func TestDirStoreIdempotentRestore(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir(), CompressionLZ4)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0x00, 0x01}, 5000)
	if err := store.Put("key", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	for round := 0; round < 3; round++ {
		restored, err := store.Get("key")
		if err != nil {
			t.Fatalf("Get round %d: %v", round, err)
		}
		if !bytes.Equal(restored, payload) {
			t.Fatalf("round %d: restored payload differs", round)
		}
	}
}

func TestDirStoreMiss(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir(), CompressionZstd)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	if _, err := store.Get("never-stored"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store = %v, want ErrNotFound", err)
	}
}

func TestDirStoreOverwrite(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir(), CompressionZstd)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	if err := store.Put("key", []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put("key", []byte("second")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	restored, err := store.Get("key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(restored) != "second" {
		t.Errorf("restored = %q, want %q", restored, "second")
	}
}

func TestDirStoreCorruptEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewDirStore(dir, CompressionZstd)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	if err := store.Put("key", bytes.Repeat([]byte("data"), 200)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Truncate the entry file behind the store's back.
	path := filepath.Join(dir, HashKey("key").Hex()+entrySuffix)
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = store.Get("key")
	var corrupt *CorruptEntryError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Get on corrupt entry = %v, want *CorruptEntryError", err)
	}
	if corrupt.Key != "key" {
		t.Errorf("corrupt.Key = %q, want %q", corrupt.Key, "key")
	}
}

func TestDirStoreDeleteAndClear(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir(), CompressionZstd)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	if err := store.Delete("missing"); err != nil {
		t.Errorf("Delete on missing key: %v", err)
	}

	for _, key := range []string{"a", "b", "c"} {
		if err := store.Put(key, []byte(key)); err != nil {
			t.Fatalf("Put %q: %v", key, err)
		}
	}
	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, key := range []string{"a", "c"} {
		if _, err := store.Get(key); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get %q after Clear = %v, want ErrNotFound", key, err)
		}
	}
}

func TestDirStoreKeysAreIndependent(t *testing.T) {
	t.Parallel()

	store, err := NewDirStore(t.TempDir(), CompressionZstd)
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	// Keys that share a prefix or contain path-hostile characters
	// must land in distinct, valid entry files.
	keys := []string{"job", "job/../job", "job-${FINGERPRINT}", strings.Repeat("k", 500)}
	for i, key := range keys {
		if err := store.Put(key, []byte{byte(i)}); err != nil {
			t.Fatalf("Put %q: %v", key, err)
		}
	}
	for i, key := range keys {
		restored, err := store.Get(key)
		if err != nil {
			t.Fatalf("Get %q: %v", key, err)
		}
		if len(restored) != 1 || restored[0] != byte(i) {
			t.Errorf("key %q: payload %v, want [%d]", key, restored, i)
		}
	}
}
