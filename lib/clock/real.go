// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
