// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/logcat"
)

// FakeConfig configures a Fake simulator.
type FakeConfig struct {
	// ScreenHeight and ScreenWidth are the fake screen dimensions in
	// pixels. Zero selects 120×80.
	ScreenHeight int
	ScreenWidth  int

	// Activity is the foreground activity the fake's CallParser
	// reports.
	Activity string

	// HeartbeatOnAction makes every SendTouch/SendKey emit one log
	// line on the current stream, keeping the freshness barrier
	// satisfied without a real chatty app.
	HeartbeatOnAction bool

	// RewardEvery emits "reward: 1.0" on the stream every Nth action
	// when positive. Gives random-agent demos a non-zero return.
	RewardEvery int
}

// Fake is a deterministic in-memory Simulator with scriptable failure
// injection. Safe for the single-caller discipline the interface
// demands plus concurrent failure scripting from a test goroutine.
type Fake struct {
	config FakeConfig
	parser *adb.FakeCallParser

	mu              sync.Mutex
	launched        bool
	closed          bool
	frame           uint64
	actions         int
	stream          *logcat.ChannelStream
	failLaunches    int
	failScreenshots int
	failActions     int
}

// NewFake returns a Fake with the given configuration.
func NewFake(config FakeConfig) *Fake {
	if config.ScreenHeight <= 0 {
		config.ScreenHeight = 120
	}
	if config.ScreenWidth <= 0 {
		config.ScreenWidth = 80
	}
	return &Fake{
		config: config,
		parser: adb.NewFakeCallParser(config.Activity),
	}
}

// FailLaunches makes the next n Launch calls fail.
func (f *Fake) FailLaunches(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLaunches = n
}

// FailScreenshots makes the next n Screenshot calls fail.
func (f *Fake) FailScreenshots(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failScreenshots = n
}

// FailActions makes the next n SendTouch/SendKey calls fail.
func (f *Fake) FailActions(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failActions = n
}

// Parser returns the fake adb call parser for test scripting.
func (f *Fake) Parser() *adb.FakeCallParser { return f.parser }

// InjectLogLine pushes one raw line onto the current log stream.
func (f *Fake) InjectLogLine(raw string) bool {
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	if stream == nil {
		return false
	}
	return stream.Inject(raw)
}

// Launch implements Simulator.
func (f *Fake) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &LaunchError{Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLaunches > 0 {
		f.failLaunches--
		return &LaunchError{Err: fmt.Errorf("scripted launch failure")}
	}
	f.launched = true
	f.closed = false
	return nil
}

// Close implements Simulator.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream != nil {
		f.stream.Close()
		f.stream = nil
	}
	f.launched = false
	f.closed = true
	return nil
}

// SendTouch implements Simulator.
func (f *Fake) SendTouch(touches []Touch) error {
	return f.recordAction()
}

// SendKey implements Simulator.
func (f *Fake) SendKey(keycode int, event KeyEvent) error {
	return f.recordAction()
}

func (f *Fake) recordAction() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.launched {
		return &SendActionError{Err: fmt.Errorf("simulator not launched")}
	}
	if f.failActions > 0 {
		f.failActions--
		return &SendActionError{Err: fmt.Errorf("scripted action failure")}
	}
	f.actions++
	if f.stream != nil {
		if f.config.RewardEvery > 0 && f.actions%f.config.RewardEvery == 0 {
			f.stream.Inject(f.frameLine("reward: 1.0"))
		} else if f.config.HeartbeatOnAction {
			f.stream.Inject(f.frameLine("heartbeat"))
		}
	}
	return nil
}

// frameLine wraps a message in logcat threadtime framing with a
// monotonically advancing timestamp.
func (f *Fake) frameLine(message string) string {
	f.frame++
	return fmt.Sprintf(" %d.%03d  1234  1234 I FakeSim: %s", 1700000000+f.frame, f.frame%1000, message)
}

// Screenshot implements Simulator. Pixels follow a deterministic
// pattern advancing every call, so consecutive frames differ.
func (f *Fake) Screenshot() (Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.launched {
		return Image{}, &ReadObservationError{Err: fmt.Errorf("simulator not launched")}
	}
	if f.failScreenshots > 0 {
		f.failScreenshots--
		return Image{}, &ReadObservationError{Err: fmt.Errorf("scripted screenshot failure")}
	}
	f.frame++
	height, width := f.config.ScreenHeight, f.config.ScreenWidth
	pixels := make([]byte, height*width*3)
	for i := range pixels {
		pixels[i] = byte((uint64(i) + f.frame) % 251)
	}
	return Image{Height: height, Width: width, Pixels: pixels}, nil
}

// LogStream implements Simulator. Each call closes the previous
// stream and starts a fresh one, mirroring a new logcat process.
func (f *Fake) LogStream() (logcat.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.launched {
		return nil, fmt.Errorf("simulator not launched")
	}
	if f.stream != nil {
		f.stream.Close()
	}
	f.stream = logcat.NewChannelStream(256)
	return f.stream, nil
}

// CallParser implements Simulator.
func (f *Fake) CallParser() adb.CallParser { return f.parser }
