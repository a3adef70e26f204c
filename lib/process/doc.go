// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Conveyor
// binaries: fatal error reporting to stderr before the structured
// logger exists, and process exit after an unrecoverable error in
// main(). All other raw I/O belongs in CLI command output paths.
package process
