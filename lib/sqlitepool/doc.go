// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with the
// project-standard pragmas applied to every connection: WAL journal
// mode, NORMAL synchronous, a busy timeout for write contention, and
// in-memory temp storage.
//
// It wraps zombiezen.com/go/sqlite. Callers [Pool.Take] a connection,
// do their work, and [Pool.Put] it back; connections are not safe for
// concurrent use.
package sqlitepool
