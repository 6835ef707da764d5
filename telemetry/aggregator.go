// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// DefaultExtrasBufferSize bounds each extra's FIFO when the
// aggregator is built with a zero buffer size. Matches the upstream
// task defaults: extras are sampled sensor-style values, and an agent
// that stalls for thousands of steps should not grow memory without
// bound.
const DefaultExtrasBufferSize = 100

// Aggregator is the thread-safe accumulator of per-step telemetry.
// Router handlers mutate it; the RL caller drains it exactly once per
// step after the freshness barrier. All methods take the single
// internal mutex.
type Aggregator struct {
	logger     *slog.Logger
	bufferSize int

	mu            sync.Mutex
	pendingReward float64
	lastScore     float64
	extras        map[string][]any
	episodeEnded  bool
}

// NewAggregator returns an empty Aggregator. bufferSize bounds each
// extra name's FIFO; zero or negative selects
// DefaultExtrasBufferSize. A nil logger discards warnings.
func NewAggregator(bufferSize int, logger *slog.Logger) *Aggregator {
	if bufferSize <= 0 {
		bufferSize = DefaultExtrasBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{
		logger:     logger,
		bufferSize: bufferSize,
		extras:     make(map[string][]any),
	}
}

// AddReward adds v to the pending reward. Used by reward and
// reward-event rules.
func (a *Aggregator) AddReward(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingReward += v
}

// ObserveScore records a new cumulative score reading and converts it
// into a reward delta against the previous reading, keeping reward
// consistent for apps that only log a running total.
func (a *Aggregator) ObserveScore(score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingReward += score - a.lastScore
	a.lastScore = score
}

// RecordExtra appends one value to the named extra's FIFO, dropping
// the oldest entry once the buffer is full.
func (a *Aggregator) RecordExtra(name string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordExtraLocked(name, value)
}

func (a *Aggregator) recordExtraLocked(name string, value any) {
	buffer := a.extras[name]
	if len(buffer) >= a.bufferSize {
		buffer = buffer[1:]
	}
	a.extras[name] = append(buffer, value)
}

// MergeJSONExtras parses one JSON object and records each key as an
// extra. A malformed document is dropped with a warning; nothing
// already pending is disturbed.
func (a *Aggregator) MergeJSONExtras(text string) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		a.logger.Warn("dropping malformed JSON extra", "payload", text, "error", err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, value := range parsed {
		a.recordExtraLocked(name, value)
	}
}

// MarkEpisodeEnded latches the episode-end flag until the next Reset.
func (a *Aggregator) MarkEpisodeEnded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.episodeEnded = true
}

// Drain atomically takes the pending reward and extras and reads the
// episode-end latch under a single critical section. A line dispatched
// mid-drain lands wholly in this step's snapshot or wholly in the
// next one, never split across the two. The latch is read, not
// cleared; only Reset clears it.
func (a *Aggregator) Drain() (reward float64, extras map[string][]any, episodeEnded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reward = a.pendingReward
	a.pendingReward = 0
	extras = a.extras
	a.extras = make(map[string][]any)
	return reward, extras, a.episodeEnded
}

// DrainReward atomically returns the pending reward and zeroes it.
func (a *Aggregator) DrainReward() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	reward := a.pendingReward
	a.pendingReward = 0
	return reward
}

// DrainExtras atomically returns all pending extras in arrival order
// and clears the store.
func (a *Aggregator) DrainExtras() map[string][]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	extras := a.extras
	a.extras = make(map[string][]any)
	return extras
}

// EpisodeEnded reports the latched episode-end flag. The latch holds
// until Reset so that a LAST transition is never lost to drain timing.
func (a *Aggregator) EpisodeEnded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.episodeEnded
}

// Reset zeroes every slice of state: pending reward, score baseline,
// extras, and the episode-end latch. Called on every task reset.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingReward = 0
	a.lastScore = 0
	a.extras = make(map[string][]any)
	a.episodeEnded = false
}
