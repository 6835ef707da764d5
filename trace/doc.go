// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace records episodes to disk for replay and debugging.
//
// A trace file is a CBOR stream: one header followed by one record per
// timestep. Screen frames are zstd-compressed and deduplicated by
// content hash, so an idle app that repeats the same frame costs a few
// bytes per step instead of a full screenshot.
package trace
