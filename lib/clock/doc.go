// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. Real() provides the
// standard library behavior; Fake() provides a deterministic clock whose
// time only moves when Advance is called.
//
// The environment core is full of time-sensitive policy, from episode
// wall-clock limits and periodic simulator restarts to observation
// timedeltas, and all of it must be testable without real sleeps. Every component that reads time carries a Clock field.
//
// # FakeClock synchronization
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock it
// registers a pending waiter. Tests call WaitForWaiters to block until
// the expected number of waiters exist, then Advance to fire them
// deterministically. This removes the race between waiter registration
// and time advancement.
package clock
