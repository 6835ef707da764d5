// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline provides a background loop with bounded hand-off
// channels, the concurrency primitive under the logcat router and the
// periodic screen checker.
//
// A Pipeline runs a caller-supplied body repeatedly on its own
// goroutine. The foreground exchanges values with the body through two
// bounded channels (input and output), each independently blocking or
// non-blocking. Kill closes a done channel once; the body observes it
// through BodyRead or Done and the loop exits after the current
// iteration. Kill cannot preempt a body blocked outside those calls,
// so bodies must poll at least once per iteration.
//
// Panics inside the body are not recovered here. Specializations must
// translate everything that is not meant to crash the process before
// it reaches the loop.
package pipeline
