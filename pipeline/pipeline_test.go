// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/droidenv/droidenv/lib/testutil"
)

const testTimeout = 5 * time.Second

func TestEchoBody(t *testing.T) {
	t.Parallel()

	p := Start(Config{Name: "echo", BlockInput: true, BlockOutput: true},
		func(p *Pipeline[int, int]) {
			v, ok := p.BodyRead()
			if !ok {
				return
			}
			p.BodyWrite(v * 2)
		})
	defer p.Kill()

	for i := 1; i <= 3; i++ {
		if err := p.Write(i, true, testTimeout); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
		got, ok := p.Read(true, testTimeout)
		if !ok {
			t.Fatalf("Read after Write(%d): nothing", i)
		}
		if got != i*2 {
			t.Errorf("Read: got %d, want %d", got, i*2)
		}
	}
}

func TestKillWakesBlockedBody(t *testing.T) {
	t.Parallel()

	p := Start(Config{Name: "blocked", BlockInput: true},
		func(p *Pipeline[struct{}, struct{}]) {
			// Blocks until input or Kill.
			p.BodyRead()
		})

	p.Kill()
	testutil.RequireClosed(t, p.Finished(), testTimeout, "goroutine exit after Kill")
}

func TestNonBlockingWriteFull(t *testing.T) {
	t.Parallel()

	// Body never reads, so the buffer fills up.
	p := Start(Config{Name: "full", InputBuffer: 1, BlockInput: true},
		func(p *Pipeline[int, struct{}]) {
			<-p.Done()
		})
	defer p.Kill()

	if err := p.Write(1, false, 0); err != nil {
		t.Fatalf("first non-blocking Write: %v", err)
	}
	// The body consumed nothing, but the goroutine may briefly hold a
	// value; only a second-or-third write is guaranteed to hit a full
	// buffer. Write until full.
	sawFull := false
	for i := 0; i < 4; i++ {
		if err := p.Write(i, false, 0); errors.Is(err, ErrFull) {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Error("non-blocking Write never returned ErrFull on a full buffer")
	}
}

func TestBlockingWriteTimeout(t *testing.T) {
	t.Parallel()

	p := Start(Config{Name: "timeout", InputBuffer: 1, BlockInput: true},
		func(p *Pipeline[int, struct{}]) {
			<-p.Done()
		})
	defer p.Kill()

	// Fill every slot the pipeline can hold before timing out.
	for i := 0; i < 4; i++ {
		if err := p.Write(i, true, 50*time.Millisecond); errors.Is(err, ErrTimeout) {
			return
		}
	}
	t.Error("blocking Write never timed out on a full buffer")
}

func TestNonBlockingReadEmpty(t *testing.T) {
	t.Parallel()

	p := Start(Config{Name: "empty", BlockInput: true},
		func(p *Pipeline[struct{}, int]) {
			p.BodyRead()
		})
	defer p.Kill()

	if _, ok := p.Read(false, 0); ok {
		t.Error("non-blocking Read on empty output returned a value")
	}
}

func TestNonBlockingBodyWriteDropsWhenFull(t *testing.T) {
	t.Parallel()

	results := make(chan bool, 8)
	p := Start(Config{Name: "drop", OutputBuffer: 1, BlockInput: true},
		func(p *Pipeline[struct{}, int]) {
			if _, ok := p.BodyRead(); !ok {
				return
			}
			results <- p.BodyWrite(7)
		})
	defer p.Kill()

	// First output fits; the second is dropped since nobody reads.
	if err := p.Write(struct{}{}, true, testTimeout); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := testutil.RequireReceive(t, results, testTimeout, "first BodyWrite"); !got {
		t.Error("first BodyWrite dropped with buffer space available")
	}
	if err := p.Write(struct{}{}, true, testTimeout); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := testutil.RequireReceive(t, results, testTimeout, "second BodyWrite"); got {
		t.Error("second BodyWrite claimed delivery into a full buffer")
	}
}

func TestWriteAfterKill(t *testing.T) {
	t.Parallel()

	p := Start(Config{Name: "dead", BlockInput: true},
		func(p *Pipeline[int, struct{}]) {
			p.BodyRead()
		})
	p.Kill()
	testutil.RequireClosed(t, p.Finished(), testTimeout, "goroutine exit")

	if err := p.Write(1, true, 0); !errors.Is(err, ErrKilled) {
		t.Errorf("Write after Kill: got %v, want ErrKilled", err)
	}
}

func TestKillIdempotent(t *testing.T) {
	t.Parallel()

	p := Start(Config{Name: "twice", BlockInput: true},
		func(p *Pipeline[struct{}, struct{}]) {
			p.BodyRead()
		})
	p.Kill()
	p.Kill()
	testutil.RequireClosed(t, p.Finished(), testTimeout, "goroutine exit")
}
