// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for droidenv packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with a time.After fallback) so
// individual tests never hang on a channel that a buggy component will
// never service. These helpers are the only place the test suite uses
// real wall-clock timeouts; everything else runs on clock.Fake.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since a failed test setup is not recoverable.
package testutil
