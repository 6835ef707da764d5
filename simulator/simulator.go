// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"context"
	"fmt"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/logcat"
)

// Image is one H×W×3 RGB screenshot. Pixels is row-major with three
// bytes per pixel; len(Pixels) == Height*Width*3.
type Image struct {
	Height int
	Width  int
	Pixels []byte
}

// Clone returns an independent copy of the image. The coordinator
// caches the last observation across steps, so shared backing arrays
// would alias.
func (img Image) Clone() Image {
	pixels := make([]byte, len(img.Pixels))
	copy(pixels, img.Pixels)
	return Image{Height: img.Height, Width: img.Width, Pixels: pixels}
}

// Touch is one finger's state in a touch batch: pixel coordinates,
// whether the finger is down, and the finger identifier.
type Touch struct {
	X      int
	Y      int
	Down   bool
	Finger int
}

// KeyEvent selects the key event kind for SendKey.
type KeyEvent int

const (
	// KeyDown presses the key.
	KeyDown KeyEvent = iota
	// KeyUp releases the key.
	KeyUp
	// KeyPress presses and immediately releases the key.
	KeyPress
)

// Simulator is the device driver handle. All methods may be called
// only from the single RL control goroutine; implementations are not
// required to be concurrency-safe.
type Simulator interface {
	// Launch boots the device. It may block for a long time and may
	// fail; failures are reported as LaunchError. Launch after a
	// previous Launch restarts the device.
	Launch(ctx context.Context) error

	// Close tears the device down. Idempotent.
	Close() error

	// SendTouch delivers one touch batch, one entry per finger.
	// Failures are reported as SendActionError.
	SendTouch(touches []Touch) error

	// SendKey delivers one keyboard event. Failures are reported as
	// SendActionError.
	SendKey(keycode int, event KeyEvent) error

	// Screenshot fetches the current screen. Failures are reported
	// as ReadObservationError.
	Screenshot() (Image, error)

	// LogStream starts a fresh log-producing process and returns its
	// stream. The caller owns the stream and must Close it.
	LogStream() (logcat.Stream, error)

	// CallParser returns a structured adb call executor bound to
	// this device.
	CallParser() adb.CallParser
}

// LaunchError reports a failed device boot.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("simulator launch: %v", e.Err) }

func (e *LaunchError) Unwrap() error { return e.Err }

// SendActionError reports a failed touch or key delivery. The
// coordinator converts it into an UNHEALTHY transition.
type SendActionError struct {
	Err error
}

func (e *SendActionError) Error() string { return fmt.Sprintf("send action: %v", e.Err) }

func (e *SendActionError) Unwrap() error { return e.Err }

// ReadObservationError reports a failed screenshot fetch. The
// coordinator converts it into an UNHEALTHY transition.
type ReadObservationError struct {
	Err error
}

func (e *ReadObservationError) Error() string { return fmt.Sprintf("read observation: %v", e.Err) }

func (e *ReadObservationError) Unwrap() error { return e.Err }
