// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conveyor-foundation/conveyor/lib/cachestore"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

func testStore(t *testing.T) *cachestore.DirStore {
	t.Helper()
	store, err := cachestore.NewDirStore(t.TempDir(), cachestore.CompressionZstd)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestCacheGateKeyExpansion(t *testing.T) {
	t.Parallel()
	env := testEnvironment(t)
	writeTree(t, env.WorkDir, map[string]string{"deps.lock": "v1"})

	gate := NewCacheGate(testStore(t), testLogger(), "build", &pipeline.CacheSpec{
		Key:         "deps-${JOB}-${FINGERPRINT}",
		Fingerprint: []string{"deps.lock"},
		Paths:       []string{"target"},
	})

	key, err := gate.Key(env)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if !strings.HasPrefix(key, "build/deps-build-") {
		t.Errorf("key = %q, want job-scoped expanded template", key)
	}

	// Identical inputs derive an identical key.
	again, err := gate.Key(env)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if key != again {
		t.Errorf("key not stable: %q then %q", key, again)
	}

	// Changing the fingerprint file changes the key.
	writeTree(t, env.WorkDir, map[string]string{"deps.lock": "v2"})
	changed, err := gate.Key(env)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if changed == key {
		t.Error("key unchanged after fingerprint input changed")
	}
}

func TestCacheGateKeyUnknownPlaceholder(t *testing.T) {
	t.Parallel()
	env := testEnvironment(t)
	gate := NewCacheGate(testStore(t), testLogger(), "build", &pipeline.CacheSpec{
		Key:   "deps-${BRANCH}",
		Paths: []string{"target"},
	})
	if _, err := gate.Key(env); err == nil {
		t.Fatal("expected error for unknown placeholder")
	}
}

func TestCacheGateJobScopingSeparatesIdenticalTemplates(t *testing.T) {
	t.Parallel()
	env := testEnvironment(t)
	spec := &pipeline.CacheSpec{Key: "shared", Paths: []string{"target"}}
	store := testStore(t)

	keyA, err := NewCacheGate(store, testLogger(), "job-a", spec).Key(env)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	keyB, err := NewCacheGate(store, testLogger(), "job-b", spec).Key(env)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if keyA == keyB {
		t.Errorf("jobs with identical templates share key %q", keyA)
	}
}

func TestCacheGateSaveRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	spec := &pipeline.CacheSpec{
		Key:         "deps-${FINGERPRINT}",
		Fingerprint: []string{"deps.lock"},
		Paths:       []string{"target"},
	}

	// First run: cold, builds state, saves.
	first := testEnvironment(t)
	writeTree(t, first.WorkDir, map[string]string{"deps.lock": "v1"})
	writeTree(t, first.Root, map[string]string{
		"target/lib.a":       "compiled",
		"target/deep/unit.o": "object",
	})
	gate := NewCacheGate(store, testLogger(), "build", spec)

	restored, err := gate.Restore(context.Background(), first)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored {
		t.Error("restore reported a hit on an empty store")
	}
	if err := gate.Save(context.Background(), first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Second run: same fingerprint input, fresh environment, hit.
	second := testEnvironment(t)
	writeTree(t, second.WorkDir, map[string]string{"deps.lock": "v1"})
	gate2 := NewCacheGate(store, testLogger(), "build", spec)

	restored, err = gate2.Restore(context.Background(), second)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !restored {
		t.Fatal("restore missed after save with identical inputs")
	}
	if !gate2.Restored() {
		t.Error("Restored() = false after a hit")
	}
	for path, want := range map[string]string{
		"target/lib.a":       "compiled",
		"target/deep/unit.o": "object",
	} {
		data, err := os.ReadFile(filepath.Join(second.Root, path))
		if err != nil {
			t.Fatalf("restored file %s: %v", path, err)
		}
		if string(data) != want {
			t.Errorf("restored %s = %q, want %q", path, data, want)
		}
	}
}

func TestCacheGateCorruptEntryRunsCold(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	env := testEnvironment(t)
	spec := &pipeline.CacheSpec{Key: "deps", Paths: []string{"target"}}
	gate := NewCacheGate(store, testLogger(), "build", spec)

	key, err := gate.Key(env)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	// A valid envelope whose payload is not a tar stream.
	if err := store.Put(key, []byte("not a tar archive")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	restored, err := gate.Restore(context.Background(), env)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored {
		t.Error("restore reported a hit for an unreadable entry")
	}
}

func TestCacheGateSaveSkipsMissingPaths(t *testing.T) {
	t.Parallel()
	store := testStore(t)
	env := testEnvironment(t)
	spec := &pipeline.CacheSpec{Key: "deps", Paths: []string{"target", "absent"}}
	gate := NewCacheGate(store, testLogger(), "build", spec)
	writeTree(t, env.Root, map[string]string{"target/lib.a": "compiled"})

	if err := gate.Save(context.Background(), env); err != nil {
		t.Fatalf("Save: %v", err)
	}
	restored, err := gate.Restore(context.Background(), env)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !restored {
		t.Error("restore missed the entry saved with a missing path")
	}
}

func TestUnpackTreeRejectsEscape(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"../outside", "/etc/passwd", "a/../../b"} {
		if !pathEscapes(name) && !filepath.IsAbs(name) {
			t.Errorf("entry %q not rejected", name)
		}
	}
	if pathEscapes("a..b/ok") {
		t.Error("entry \"a..b/ok\" wrongly rejected")
	}
}

func TestUnpackTreeRejectsEscapingSymlink(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "env")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// A hostile archive: a symlink pointing out of the root, then a
	// file written through it.
	content := []byte("hostile")
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	if err := writer.WriteHeader(&tar.Header{
		Name:     "leak",
		Typeflag: tar.TypeSymlink,
		Linkname: "../",
	}); err != nil {
		t.Fatalf("writing symlink header: %v", err)
	}
	if err := writer.WriteHeader(&tar.Header{
		Name:     "leak/planted",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(content)),
	}); err != nil {
		t.Fatalf("writing file header: %v", err)
	}
	if _, err := writer.Write(content); err != nil {
		t.Fatalf("writing file body: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}

	if err := unpackTree(root, buffer.Bytes()); err == nil {
		t.Fatal("archive with escaping symlink unpacked without error")
	}
	if _, err := os.Lstat(filepath.Join(base, "planted")); !os.IsNotExist(err) {
		t.Fatal("file landed outside the environment root")
	}
}

func TestUnpackTreeConfinesWriteThroughExistingSymlink(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := filepath.Join(base, "env")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// A symlink already inside the root, pointing above it.
	if err := os.Symlink(base, filepath.Join(root, "leak")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	content := []byte("hostile")
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	if err := writer.WriteHeader(&tar.Header{
		Name:     "leak/planted",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(content)),
	}); err != nil {
		t.Fatalf("writing file header: %v", err)
	}
	if _, err := writer.Write(content); err != nil {
		t.Fatalf("writing file body: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}

	if err := unpackTree(root, buffer.Bytes()); err != nil {
		t.Fatalf("unpackTree: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(base, "planted")); !os.IsNotExist(err) {
		t.Fatal("file landed outside the environment root")
	}
}

func TestLinknameEscapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		linkname string
		escapes  bool
	}{
		{"leak", "../outside", true},
		{"leak", "/etc/passwd", true},
		{"a/b/leak", "../../../outside", true},
		{"leak", "", true},
		{"a/b/leak", "../sibling", false},
		{"leak", "target", false},
		{"leak", "sub/../target", false},
	}
	for _, tt := range tests {
		if got := linknameEscapes(tt.name, tt.linkname); got != tt.escapes {
			t.Errorf("linknameEscapes(%q, %q) = %v, want %v", tt.name, tt.linkname, got, tt.escapes)
		}
	}
}
