// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package logcat

import (
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/droidenv/droidenv/lib/clock"
	"github.com/droidenv/droidenv/pipeline"
)

// EventListener is a stateless routing rule: when Pattern matches a
// line's message, Handle is invoked with the pattern and the submatch
// slice. Handlers run synchronously on the router goroutine and must
// not block.
type EventListener struct {
	Pattern *regexp.Regexp
	Handle  func(pattern *regexp.Regexp, match []string)
}

// RouterConfig holds the construction parameters for a Router.
type RouterConfig struct {
	// Stream is the live log line source. The router owns it: Kill
	// closes the stream.
	Stream Stream

	// Listeners are evaluated, all of them, against every dispatched
	// line.
	Listeners []EventListener

	// Clock drives barrier timeouts. Nil means the real clock.
	Clock clock.Clock

	// Logger receives router lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

// Router consumes a log stream on a background pipeline and dispatches
// every line to all matching listeners. Dispatch is gated by
// Pause/Resume; draining from the stream is not, so a paused router
// never causes producer back-pressure.
type Router struct {
	stream    Stream
	listeners []EventListener
	clock     clock.Clock
	logger    *slog.Logger
	paused    atomic.Bool

	pipe *pipeline.Pipeline[struct{}, struct{}]

	// mu guards the dispatched-line counter and its notification
	// channel, which together implement the freshness barrier.
	mu     sync.Mutex
	count  uint64
	notify chan struct{}
}

// NewRouter starts a Router over the given stream. The returned router
// begins paused=false: lines are dispatched immediately.
func NewRouter(cfg RouterConfig) *Router {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Router{
		stream:    cfg.Stream,
		listeners: cfg.Listeners,
		clock:     clk,
		logger:    logger,
		notify:    make(chan struct{}),
	}
	r.pipe = pipeline.Start(pipeline.Config{
		Name:   "logcat-router",
		Logger: logger,
	}, r.iterate)
	return r
}

// iterate is the pipeline body: consume one raw line per iteration.
func (r *Router) iterate(p *pipeline.Pipeline[struct{}, struct{}]) {
	select {
	case raw, ok := <-r.stream.Lines():
		if !ok {
			// Producer ended. Nothing further will arrive.
			r.logger.Debug("log stream ended")
			p.Kill()
			return
		}
		r.process(raw, p)
	case <-p.Done():
	}
}

// process parses and dispatches one line. Paused lines are consumed
// but neither dispatched nor counted toward the freshness barrier.
func (r *Router) process(raw string, p *pipeline.Pipeline[struct{}, struct{}]) {
	if r.paused.Load() {
		return
	}
	line, ok := ParseLine(raw)
	if !ok {
		return
	}

	for _, listener := range r.listeners {
		select {
		case <-p.Done():
			// Killed mid-line: the in-flight handler already
			// returned, no further dispatch.
			return
		default:
		}
		if match := listener.Pattern.FindStringSubmatch(line.Message); match != nil {
			listener.Handle(listener.Pattern, match)
		}
	}

	r.mu.Lock()
	r.count++
	close(r.notify)
	r.notify = make(chan struct{})
	r.mu.Unlock()
}

// Pause gates dispatch. Lines arriving while paused are drained from
// the stream and discarded, so setup and reset side-effect lines never
// pollute the next episode's telemetry.
func (r *Router) Pause() { r.paused.Store(true) }

// Resume re-enables dispatch.
func (r *Router) Resume() { r.paused.Store(false) }

// LineCount returns the number of fully dispatched lines. Callers
// snapshot it before acting and pass the snapshot to WaitForLine.
func (r *Router) LineCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// WaitForLine blocks until the dispatched-line count exceeds since,
// then returns true. Returns false when the timeout elapses first
// (timeout <= 0 waits forever) or the router is killed. This is the
// freshness barrier: telemetry drained after a true return reflects at
// least one line observed since the snapshot.
func (r *Router) WaitForLine(since uint64, timeout time.Duration) bool {
	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = r.clock.After(timeout)
	}
	for {
		r.mu.Lock()
		if r.count > since {
			r.mu.Unlock()
			return true
		}
		changed := r.notify
		r.mu.Unlock()

		select {
		case <-changed:
		case <-deadline:
			return false
		case <-r.pipe.Done():
			return false
		}
	}
}

// Kill stops the router and terminates the log-producing process. No
// dispatch occurs after the in-flight handler returns. Blocks until
// the router goroutine has exited.
func (r *Router) Kill() {
	r.pipe.Kill()
	if err := r.stream.Close(); err != nil {
		r.logger.Warn("closing log stream", "error", err)
	}
	<-r.pipe.Finished()
}
