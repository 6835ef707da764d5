// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package logcat

import "sync"

// Stream is the narrow interface to a live log-producing process. The
// simulator layer owns the process; the router only consumes lines and
// terminates the producer on Close.
type Stream interface {
	// Lines returns the channel of raw log lines. The producer closes
	// it when the underlying process ends.
	Lines() <-chan string

	// Close terminates the log-producing process. Idempotent.
	Close() error
}

// ChannelStream is an in-memory Stream fed by Inject. The fake
// simulator and the router tests use it in place of a real logcat
// process.
type ChannelStream struct {
	lines chan string

	mu     sync.Mutex
	closed bool
}

// NewChannelStream returns a ChannelStream with the given buffer
// capacity.
func NewChannelStream(buffer int) *ChannelStream {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelStream{lines: make(chan string, buffer)}
}

// Inject delivers one raw line to the stream's consumer. Returns false
// if the stream is closed or the buffer is full.
func (s *ChannelStream) Inject(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.lines <- line:
		return true
	default:
		return false
	}
}

// Lines implements Stream.
func (s *ChannelStream) Lines() <-chan string { return s.lines }

// Close implements Stream. The lines channel is closed so the consumer
// observes end-of-stream.
func (s *ChannelStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	return nil
}
