// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the subset of the time package used by the
// environment core. Production code injects Real(); tests inject
// Fake() for deterministic control.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C at the given
	// interval. Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop to
// release resources. C has capacity 1: if the consumer falls behind,
// ticks are dropped rather than queued, matching time.Ticker.
type Ticker struct {
	// C delivers ticks.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. No ticks are delivered after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
