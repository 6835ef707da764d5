// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry accumulates reward, score, extras, and episode-end
// signals mined from device log lines.
//
// The Aggregator is the single synchronization point between the log
// router goroutine (its sole writer) and the RL caller (its sole
// drainer): one mutex, bounded extras FIFOs, and atomic
// read-and-clear drain operations. Router handlers are generated from
// declarative Rules (a tagged variant dispatched through a switch)
// rather than ad-hoc closures over shared state.
//
// Extras payloads arrive as untrusted text. ParseLiteral accepts only
// a closed grammar (numbers, strings, booleans, lists, dicts); a
// malformed payload is dropped with a warning and never takes the
// router down or disturbs unrelated pending telemetry.
package telemetry
