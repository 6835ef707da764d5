// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time moves only
// when Advance is called; all waiters registered through Sleep, After,
// and NewTicker fire when the clock passes their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*waiter
	changed *sync.Cond
}

// waiter is a pending Sleep, After, or Ticker registration.
type waiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers: after firing, the waiter is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock is advanced
// past the deadline. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &waiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	c.changed.Broadcast()
	return channel
}

// NewTicker returns a Ticker that fires every d of fake time during
// Advance. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive NewTicker interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{
		deadline: c.current.Add(d),
		channel:  make(chan time.Time, 1),
		interval: d,
	}
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()

	return &Ticker{
		C: w.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock is advanced past
// the deadline. Returns immediately if d <= 0.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the fake time forward by d, firing every waiter whose
// deadline falls within the advanced window in deadline order. Tickers
// are rescheduled and may fire multiple times in a single Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)
	for {
		next := c.nextDeadlineLocked(target)
		if next == nil {
			break
		}
		c.current = next.deadline
		c.fireLocked(next)
	}
	c.current = target
	c.compactLocked()
}

// WaitForWaiters blocks until at least n live waiters are registered.
// Call this before Advance when the waiter is registered by another
// goroutine, so the fire is not raced past the registration.
func (c *FakeClock) WaitForWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveWaitersLocked() < n {
		c.changed.Wait()
	}
}

// nextDeadlineLocked returns the unfired waiter with the earliest
// deadline at or before target, or nil when none remain.
func (c *FakeClock) nextDeadlineLocked(target time.Time) *waiter {
	candidates := make([]*waiter, 0, len(c.waiters))
	for _, w := range c.waiters {
		if w.stopped || w.fired {
			continue
		}
		if !w.deadline.After(target) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].deadline.Before(candidates[j].deadline)
	})
	return candidates[0]
}

func (c *FakeClock) fireLocked(w *waiter) {
	// Non-blocking send: ticker channels have capacity 1, and a
	// consumer that fell behind loses the tick rather than blocking
	// Advance.
	select {
	case w.channel <- c.current:
	default:
	}
	if w.interval > 0 {
		w.deadline = w.deadline.Add(w.interval)
	} else {
		w.fired = true
	}
}

func (c *FakeClock) liveWaitersLocked() int {
	count := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			count++
		}
	}
	return count
}

func (c *FakeClock) compactLocked() {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			live = append(live, w)
		}
	}
	c.waiters = live
}
