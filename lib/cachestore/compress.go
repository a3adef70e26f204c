// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package cachestore

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a cache
// entry payload. Tags are stored in entry envelopes — these values are
// format constants, changing them breaks existing caches.
type CompressionTag uint8

const (
	// CompressionNone stores the payload uncompressed. Used for
	// already-compressed content where compression adds CPU cost
	// without reducing size.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: fast with modest
	// ratios. Good for large binary cache payloads (build artifacts,
	// object files) where restore latency matters more than bytes.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level: better ratios
	// for text-heavy payloads (registries, source trees). This is
	// the engine's default tag.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation (the form used in configuration files).
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// errIncompressible signals that compression did not shrink the data.
// Compress falls back to CompressionNone instead of surfacing it.
var errIncompressible = errors.New("cachestore: data is incompressible")

// Compress compresses data with the requested algorithm. When the
// output would not be smaller than the input, the data is stored
// uncompressed instead — the returned tag says which algorithm was
// actually applied and must be recorded in the envelope.
func Compress(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		compressed, err := compressLZ4(data)
		if errors.Is(err, errIncompressible) {
			return data, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, CompressionLZ4, nil

	case CompressionZstd:
		compressed, err := compressZstd(data)
		if errors.Is(err, errIncompressible) {
			return data, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Decompress reverses Compress. The uncompressedSize must match the
// original data length exactly — this is verified and a mismatch
// returns an error.
func Decompress(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)

	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// LZ4 compression: block-mode LZ4.

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible; also reject output that is not actually
	// smaller than the input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// Zstd compression at the default level — good ratio without
// excessive CPU.

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("cachestore: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cachestore: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(destination) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(destination), uncompressedSize)
	}
	return destination, nil
}
