// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrFull is returned by a non-blocking Write when the input
	// buffer has no space.
	ErrFull = errors.New("pipeline: input buffer full")

	// ErrTimeout is returned by a blocking Write whose timeout
	// elapsed before space appeared.
	ErrTimeout = errors.New("pipeline: write timed out")

	// ErrKilled is returned by Write after Kill.
	ErrKilled = errors.New("pipeline: killed")
)

// Config holds the construction parameters for a Pipeline.
type Config struct {
	// Name identifies the pipeline in logs.
	Name string

	// InputBuffer and OutputBuffer are the hand-off channel
	// capacities. Zero means the default of 16.
	InputBuffer  int
	OutputBuffer int

	// BlockInput controls the body-side BodyRead: when true it waits
	// for input or Kill, when false it returns immediately if the
	// buffer is empty.
	BlockInput bool

	// BlockOutput controls the body-side BodyWrite: when true it
	// waits for buffer space or Kill, when false a value written to a
	// full buffer is dropped.
	BlockOutput bool

	// Logger receives lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

const defaultBuffer = 16

// Pipeline runs a body function repeatedly on a background goroutine
// until Kill. The type parameters are the input and output payload
// types of the bounded hand-off channels.
type Pipeline[In, Out any] struct {
	name        string
	input       chan In
	output      chan Out
	blockInput  bool
	blockOutput bool
	logger      *slog.Logger

	done     chan struct{}
	killOnce sync.Once
	finished chan struct{}
}

// Start constructs a Pipeline and launches its goroutine. The body is
// invoked repeatedly until Kill; each invocation is one iteration.
func Start[In, Out any](cfg Config, body func(*Pipeline[In, Out])) *Pipeline[In, Out] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	inputBuffer := cfg.InputBuffer
	if inputBuffer <= 0 {
		inputBuffer = defaultBuffer
	}
	outputBuffer := cfg.OutputBuffer
	if outputBuffer <= 0 {
		outputBuffer = defaultBuffer
	}

	p := &Pipeline[In, Out]{
		name:        cfg.Name,
		input:       make(chan In, inputBuffer),
		output:      make(chan Out, outputBuffer),
		blockInput:  cfg.BlockInput,
		blockOutput: cfg.BlockOutput,
		logger:      logger,
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
	}

	go func() {
		p.logger.Debug("pipeline started", "name", p.name)
		defer close(p.finished)
		defer p.logger.Debug("pipeline finished", "name", p.name)
		for {
			select {
			case <-p.done:
				return
			default:
			}
			body(p)
		}
	}()

	return p
}

// Write enqueues a value for the body. When block is false it returns
// ErrFull if the buffer has no space. When block is true it waits for
// space, bounded by timeout when timeout > 0, and returns ErrTimeout
// on expiry. Returns ErrKilled once the pipeline is killed.
func (p *Pipeline[In, Out]) Write(v In, block bool, timeout time.Duration) error {
	if !block {
		select {
		case p.input <- v:
			return nil
		case <-p.done:
			return ErrKilled
		default:
			return ErrFull
		}
	}
	if timeout > 0 {
		select {
		case p.input <- v:
			return nil
		case <-time.After(timeout):
			return ErrTimeout
		case <-p.done:
			return ErrKilled
		}
	}
	select {
	case p.input <- v:
		return nil
	case <-p.done:
		return ErrKilled
	}
}

// Read dequeues a value produced by the body. The second return is
// false when nothing was available: immediately for a non-blocking
// read, after timeout for a bounded blocking read, or on Kill.
func (p *Pipeline[In, Out]) Read(block bool, timeout time.Duration) (Out, bool) {
	var zero Out
	if !block {
		select {
		case v := <-p.output:
			return v, true
		default:
			return zero, false
		}
	}
	if timeout > 0 {
		select {
		case v := <-p.output:
			return v, true
		case <-time.After(timeout):
			return zero, false
		case <-p.done:
			return zero, false
		}
	}
	select {
	case v := <-p.output:
		return v, true
	case <-p.done:
		return zero, false
	}
}

// Kill flags the loop to exit after the current iteration and wakes a
// body blocked in BodyRead or BodyWrite. Idempotent. Kill does not
// wait for the goroutine; use Finished for that.
func (p *Pipeline[In, Out]) Kill() {
	p.killOnce.Do(func() {
		p.logger.Debug("pipeline kill", "name", p.name)
		close(p.done)
	})
}

// Done reports pipeline termination to the body. Bodies that block on
// sources other than BodyRead must select on Done alongside them.
func (p *Pipeline[In, Out]) Done() <-chan struct{} { return p.done }

// Finished closes once the background goroutine has returned.
func (p *Pipeline[In, Out]) Finished() <-chan struct{} { return p.finished }

// BodyRead dequeues one input value inside the body. In blocking input
// mode it waits for a value or Kill; otherwise it returns immediately.
// The second return is false when no value was delivered.
func (p *Pipeline[In, Out]) BodyRead() (In, bool) {
	var zero In
	if p.blockInput {
		select {
		case v := <-p.input:
			return v, true
		case <-p.done:
			return zero, false
		}
	}
	select {
	case v := <-p.input:
		return v, true
	default:
		return zero, false
	}
}

// BodyWrite enqueues one output value inside the body. In blocking
// output mode it waits for space or Kill; otherwise a value that does
// not fit is dropped. Returns false when the value was not delivered.
func (p *Pipeline[In, Out]) BodyWrite(v Out) bool {
	if p.blockOutput {
		select {
		case p.output <- v:
			return true
		case <-p.done:
			return false
		}
	}
	select {
	case p.output <- v:
		return true
	default:
		return false
	}
}
