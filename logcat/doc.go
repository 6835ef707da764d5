// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package logcat turns the device's free-running log output into
// discrete, regex-routed events.
//
// A Stream is the narrow interface to the log-producing process: a
// channel of raw lines and a Close that terminates the producer. The
// Router consumes the stream on a background pipeline, parses each
// line into a Line, and evaluates every registered EventListener
// against the message field, invoking all matches synchronously on the
// router goroutine. Handlers must be non-blocking.
//
// The router also maintains the freshness barrier: a monotonically
// increasing count of fully dispatched lines that the task layer waits
// on before draining telemetry, so a step's reward reflects that
// step's device activity and not a stale snapshot.
package logcat
