// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/conveyor-foundation/conveyor/lib/cachestore"
	"github.com/conveyor-foundation/conveyor/lib/schema/pipeline"
)

// keyPlaceholderPattern matches ${NAME} placeholders in cache key
// templates.
var keyPlaceholderPattern = regexp.MustCompile(`\$\{([A-Z_]+)\}`)

// CacheGate connects one job to the cache store: it derives the job's
// cache key from the declaration and the current fingerprint inputs,
// restores an entry into the environment before steps run, and saves
// the declared paths after a successful run.
//
// The gate degrades, never blocks: a miss or a corrupt entry means
// the job runs cold, and identical inputs always derive an identical
// key, so repeated runs with unchanged fingerprint files hit the same
// entry.
type CacheGate struct {
	store  cachestore.Store
	logger *slog.Logger
	job    string
	spec   *pipeline.CacheSpec

	restored bool
}

// NewCacheGate builds the gate for one job's cache declaration.
func NewCacheGate(store cachestore.Store, logger *slog.Logger, job string, spec *pipeline.CacheSpec) *CacheGate {
	return &CacheGate{store: store, logger: logger, job: job, spec: spec}
}

// Key derives the job's cache key: the declaration's template with
// ${JOB} and ${FINGERPRINT} expanded, scoped under the job name. The
// job scope applies even when the template omits ${JOB}, so two jobs
// with identical templates never share an entry. Unknown placeholders
// are an error — a typo must not silently widen the key.
func (g *CacheGate) Key(env *Environment) (string, error) {
	fingerprint, err := cachestore.FingerprintFiles(env.WorkDir, g.spec.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("fingerprinting cache inputs: %w", err)
	}

	var expandErr error
	expanded := keyPlaceholderPattern.ReplaceAllStringFunc(g.spec.Key, func(match string) string {
		name := keyPlaceholderPattern.FindStringSubmatch(match)[1]
		switch name {
		case "JOB":
			return g.job
		case "FINGERPRINT":
			return fingerprint.Hex()
		default:
			if expandErr == nil {
				expandErr = fmt.Errorf("cache key template: unknown placeholder %s", match)
			}
			return match
		}
	})
	if expandErr != nil {
		return "", expandErr
	}
	return g.job + "/" + expanded, nil
}

// Restore fetches the entry for the derived key and unpacks it into
// the environment root. Best-effort: a miss, a corrupt entry, or an
// unpack failure is logged and reported as not restored, and the job
// proceeds cold. Only key derivation errors surface, since they mean
// the declaration itself is broken.
func (g *CacheGate) Restore(ctx context.Context, env *Environment) (bool, error) {
	key, err := g.Key(env)
	if err != nil {
		return false, err
	}

	payload, err := g.store.Get(key)
	if err != nil {
		var corrupt *cachestore.CorruptEntryError
		switch {
		case errors.Is(err, cachestore.ErrNotFound):
			g.logger.Debug("cache miss", "job", g.job, "key", key)
		case errors.As(err, &corrupt):
			g.logger.Warn("corrupt cache entry, running cold", "job", g.job, "key", key, "error", err)
		default:
			g.logger.Warn("cache read failed, running cold", "job", g.job, "key", key, "error", err)
		}
		return false, nil
	}
	if ctx.Err() != nil {
		return false, nil
	}

	if err := unpackTree(env.Root, payload); err != nil {
		g.logger.Warn("cache unpack failed, running cold", "job", g.job, "key", key, "error", err)
		return false, nil
	}
	g.logger.Info("cache restored", "job", g.job, "key", key, "bytes", len(payload))
	g.restored = true
	return true, nil
}

// Restored reports whether a restore during this job actually
// populated the environment from the store.
func (g *CacheGate) Restored() bool { return g.restored }

// Save packs the declared paths from the environment root and writes
// the entry under the derived key. Paths that do not exist yet are
// skipped; an entry is written even when every path is missing, so a
// later run still observes a hit and the miss diagnosis stays with
// the declaration.
func (g *CacheGate) Save(ctx context.Context, env *Environment) error {
	key, err := g.Key(env)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	payload, err := packTree(env.Root, g.spec.Paths)
	if err != nil {
		return fmt.Errorf("packing cache paths: %w", err)
	}
	if err := g.store.Put(key, payload); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	g.logger.Info("cache saved", "job", g.job, "key", key, "bytes", len(payload))
	return nil
}

// packTree archives the given paths (relative to root) into a tar
// stream. Header names stay relative so the archive is position
// independent.
func packTree(root string, paths []string) ([]byte, error) {
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)

	for _, declared := range paths {
		base := filepath.Join(root, declared)
		if _, err := os.Lstat(base); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(base, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			relative, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			var link string
			if info.Mode()&os.ModeSymlink != 0 {
				if link, err = os.Readlink(path); err != nil {
					return err
				}
			}
			header, err := tar.FileInfoHeader(info, link)
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(relative)
			// Strip timestamps so identical content packs to
			// identical bytes.
			header.ModTime = modTimeZero
			header.AccessTime = modTimeZero
			header.ChangeTime = modTimeZero

			if err := writer.WriteHeader(header); err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			_, err = io.Copy(writer, file)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// unpackTree extracts a tar stream produced by packTree into root.
// Entry names and symlink targets are confined to root: names are
// resolved with SecureJoin so a path through a previously extracted
// symlink cannot land outside root, and a symlink whose target points
// out of root is rejected outright. An entry that escapes is a corrupt
// or hostile archive and aborts the unpack.
func unpackTree(root string, payload []byte) error {
	reader := tar.NewReader(bytes.NewReader(payload))
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(header.Name)
		if name == "" || filepath.IsAbs(name) || pathEscapes(header.Name) {
			return fmt.Errorf("archive entry %q escapes the environment root", header.Name)
		}
		target, err := securejoin.SecureJoin(root, name)
		if err != nil {
			return fmt.Errorf("resolving archive entry %q: %w", header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if linknameEscapes(header.Name, header.Linkname) {
				return fmt.Errorf("archive symlink %q -> %q escapes the environment root", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(file, reader); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
		default:
			// Devices and pipes never come out of packTree.
			return fmt.Errorf("archive entry %q has unsupported type %d", header.Name, header.Typeflag)
		}
	}
}

// pathEscapes reports whether a slash-separated archive name contains
// a ".." segment.
func pathEscapes(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// linknameEscapes reports whether a symlink entry's target resolves
// outside the archive root. The target is interpreted relative to the
// entry's own directory, the way the link will resolve once extracted.
func linknameEscapes(name, linkname string) bool {
	if linkname == "" || path.IsAbs(linkname) {
		return true
	}
	resolved := path.Join(path.Dir(name), linkname)
	return resolved == ".." || strings.HasPrefix(resolved, "../")
}

// modTimeZero is the fixed timestamp written into archive headers.
var modTimeZero = time.Unix(0, 0).UTC()
