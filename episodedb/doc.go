// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package episodedb persists per-episode results to SQLite, so long
// training runs can be inspected and compared after the fact without
// parsing logs.
package episodedb
