// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/lib/clock"
	"github.com/droidenv/droidenv/rl"
	"github.com/droidenv/droidenv/simulator"
	"github.com/droidenv/droidenv/task"
)

// State is the coordinator's view of the device.
type State int

const (
	// StateUnlaunched means no launch has succeeded yet.
	StateUnlaunched State = iota
	// StateHealthy means the device is serving actions and
	// observations.
	StateHealthy
	// StateUnhealthy means a device interaction failed; the next
	// Reset relaunches.
	StateUnhealthy
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateUnlaunched:
		return "UNLAUNCHED"
	case StateHealthy:
		return "HEALTHY"
	case StateUnhealthy:
		return "UNHEALTHY"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TooManyRestartsError reports a launch sequence that failed on every
// attempt. The wrapped error is the last attempt's failure. There is
// no recovering from it short of operator intervention, so callers
// should treat it as fatal.
type TooManyRestartsError struct {
	Attempts int
	Err      error
}

func (e *TooManyRestartsError) Error() string {
	return fmt.Sprintf("simulator failed to launch after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TooManyRestartsError) Unwrap() error { return e.Err }

// Metrics counts coordinator events since construction. Snapshot via
// Coordinator.Metrics.
type Metrics struct {
	// Launches counts successful boot-and-setup sequences.
	Launches int

	// LaunchAttempts counts every attempt, including failed ones.
	LaunchAttempts int

	// FailuresLaunch, FailuresSettings, and FailuresSetup break the
	// failed attempts down by the stage that failed.
	FailuresLaunch   int
	FailuresSettings int
	FailuresSetup    int

	// FailuresResetSteps counts episode resets whose step sequence
	// failed.
	FailuresResetSteps int

	// FailuresSendAction and FailuresFetchObservation count device
	// interactions that broke an episode.
	FailuresSendAction       int
	FailuresFetchObservation int

	// RelaunchesUnhealthy, RelaunchesTaskRequested, and
	// RelaunchesPeriodic break relaunch decisions down by trigger.
	RelaunchesUnhealthy     int
	RelaunchesTaskRequested int
	RelaunchesPeriodic      int
}

// Config holds the construction parameters for a Coordinator.
type Config struct {
	// Simulator is the device driver. Required.
	Simulator simulator.Simulator

	// Task manages the task lifecycle on the device. Required.
	Task *task.Manager

	// NumFingers is the width of the touch batches sent to the
	// device. Zero means one.
	NumFingers int

	// Settings is applied to the device after every launch.
	Settings adb.SettingsConfig

	// MaxLaunchAttempts bounds the launch retry loop. Zero means
	// three.
	MaxLaunchAttempts int

	// PeriodicRestartInterval forces a relaunch on the first Reset
	// after this much device uptime. Zero disables it.
	PeriodicRestartInterval time.Duration

	// Clock drives timestamps and the restart timer. Nil means the
	// real clock.
	Clock clock.Clock

	// Logger receives lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

const defaultMaxLaunchAttempts = 3

// Coordinator drives one simulator and one task manager from a single
// control goroutine. It is not safe for concurrent use.
type Coordinator struct {
	sim               simulator.Simulator
	tm                *task.Manager
	numFingers        int
	settings          adb.SettingsConfig
	maxLaunchAttempts int
	periodicRestart   time.Duration
	clock             clock.Clock
	logger            *slog.Logger

	state       State
	device      *adb.DeviceSettings
	screenH     int
	screenW     int
	orientation [4]uint8

	launchTime          time.Time
	lastObservationTime time.Time
	lastObservation     *rl.Observation

	metrics Metrics
}

// New builds a Coordinator. The device is not launched until the
// first Reset (or an explicit Launch).
func New(cfg Config) (*Coordinator, error) {
	if cfg.Simulator == nil {
		return nil, errors.New("coordinator: Simulator is required")
	}
	if cfg.Task == nil {
		return nil, errors.New("coordinator: Task is required")
	}
	numFingers := cfg.NumFingers
	if numFingers <= 0 {
		numFingers = 1
	}
	maxAttempts := cfg.MaxLaunchAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxLaunchAttempts
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		sim:               cfg.Simulator,
		tm:                cfg.Task,
		numFingers:        numFingers,
		settings:          cfg.Settings,
		maxLaunchAttempts: maxAttempts,
		periodicRestart:   cfg.PeriodicRestartInterval,
		clock:             clk,
		logger:            logger,
	}, nil
}

// State returns the current health state.
func (c *Coordinator) State() State { return c.state }

// Metrics returns a snapshot of the coordinator's counters.
func (c *Coordinator) Metrics() Metrics { return c.metrics }

// Launch boots the device and installs the task, retrying the whole
// sequence on any stage failure. On success the coordinator is
// healthy. On exhaustion it returns a *TooManyRestartsError and stays
// unlaunched or unhealthy.
func (c *Coordinator) Launch(ctx context.Context) error {
	if c.state == StateHealthy {
		c.state = StateUnhealthy
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxLaunchAttempts; attempt++ {
		c.metrics.LaunchAttempts++
		if lastErr != nil {
			c.logger.Warn("retrying simulator launch", "attempt", attempt, "error", lastErr)
		}

		// Stop the previous session's router and checker before the
		// device goes down under them.
		c.tm.Stop()

		if err := c.sim.Launch(ctx); err != nil {
			c.metrics.FailuresLaunch++
			lastErr = err
			continue
		}
		c.launchTime = c.clock.Now()

		if err := c.configureDevice(); err != nil {
			c.metrics.FailuresSettings++
			lastErr = err
			continue
		}

		stream, err := c.sim.LogStream()
		if err != nil {
			c.metrics.FailuresSetup++
			lastErr = fmt.Errorf("opening log stream: %w", err)
			continue
		}
		c.tm.Start(stream, c.sim.CallParser())
		if err := c.tm.SetupTask(); err != nil {
			c.metrics.FailuresSetup++
			lastErr = err
			continue
		}

		c.state = StateHealthy
		c.lastObservationTime = time.Time{}
		c.metrics.Launches++
		c.logger.Info("simulator launched", "attempt", attempt,
			"screen_height", c.screenH, "screen_width", c.screenW)
		return nil
	}

	c.logger.Error("giving up on simulator launch",
		"attempts", c.maxLaunchAttempts, "error", lastErr)
	return &TooManyRestartsError{Attempts: c.maxLaunchAttempts, Err: lastErr}
}

// configureDevice applies presentation settings and probes the screen
// geometry and orientation of a freshly booted device.
func (c *Coordinator) configureDevice() error {
	c.device = adb.NewDeviceSettings(c.sim.CallParser(), c.logger)
	if err := c.device.Apply(c.settings); err != nil {
		return err
	}
	img, err := c.sim.Screenshot()
	if err != nil {
		return fmt.Errorf("probing screen size: %w", err)
	}
	c.screenH, c.screenW = img.Height, img.Width

	orientation, err := c.device.Orientation()
	if err != nil {
		return err
	}
	c.orientation = orientation
	return nil
}

// Reset starts a new episode. The device is relaunched first when it
// is not healthy, when the task manager has requested a restart, or
// when the periodic restart timer has elapsed. A device failure during
// the reset sequence itself triggers one relaunch-and-retry; only
// launch exhaustion is returned as an error.
func (c *Coordinator) Reset(ctx context.Context) (rl.TimeStep, error) {
	relaunch := true
	switch {
	case c.state != StateHealthy:
		if c.state == StateUnhealthy {
			c.metrics.RelaunchesUnhealthy++
		}
	case c.tm.ShouldRestart():
		c.logger.Info("relaunching: task manager requested a restart")
		c.metrics.RelaunchesTaskRequested++
	case c.periodicRestartDue():
		c.logger.Info("relaunching: periodic restart timer elapsed",
			"uptime", c.clock.Now().Sub(c.launchTime))
		c.metrics.RelaunchesPeriodic++
	default:
		relaunch = false
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if relaunch {
			if err := c.Launch(ctx); err != nil {
				return rl.TimeStep{}, err
			}
		}
		ts, err := c.resetEpisode()
		if err == nil {
			return ts, nil
		}
		lastErr = err
		c.logger.Warn("episode reset failed, relaunching", "error", err)
		c.state = StateUnhealthy
		c.metrics.RelaunchesUnhealthy++
		relaunch = true
	}
	return rl.TimeStep{}, fmt.Errorf("episode reset: %w", lastErr)
}

// resetEpisode runs one reset sequence against a healthy device: lift
// every finger, run the reset steps, refresh the orientation, and hand
// the first observation to the task manager. The lift comes first so a
// touch held over from the previous episode cannot interfere with the
// reset steps.
func (c *Coordinator) resetEpisode() (rl.TimeStep, error) {
	if err := c.liftAllFingers(); err != nil {
		c.metrics.FailuresSendAction++
		return rl.TimeStep{}, err
	}
	if err := c.tm.ResetTask(); err != nil {
		c.metrics.FailuresResetSteps++
		return rl.TimeStep{}, err
	}

	orientation, err := c.device.Orientation()
	if err != nil {
		c.metrics.FailuresFetchObservation++
		return rl.TimeStep{}, err
	}
	c.orientation = orientation

	c.lastObservationTime = time.Time{}
	obs, err := c.observe()
	if err != nil {
		c.metrics.FailuresFetchObservation++
		return rl.TimeStep{}, err
	}
	return c.tm.RLReset(obs), nil
}

// Step sends one action and returns the resulting timestep. A device
// failure mid-step ends the episode immediately: the returned timestep
// is LAST with zero reward and discount, carrying the last good
// observation, and the coordinator goes unhealthy so the next Reset
// relaunches. Only an invalid action is an error.
func (c *Coordinator) Step(action rl.Action) (rl.TimeStep, error) {
	if err := action.Validate(); err != nil {
		return rl.TimeStep{}, fmt.Errorf("invalid action: %w", err)
	}
	if c.state != StateHealthy {
		return c.truncatedStep(), nil
	}

	if err := c.sendAction(action); err != nil {
		c.logger.Warn("action delivery failed", "error", err)
		c.metrics.FailuresSendAction++
		c.state = StateUnhealthy
		return c.truncatedStep(), nil
	}

	obs, err := c.observe()
	if err != nil {
		c.logger.Warn("observation fetch failed", "error", err)
		c.metrics.FailuresFetchObservation++
		c.state = StateUnhealthy
		return c.truncatedStep(), nil
	}
	return c.tm.RLStep(obs), nil
}

// truncatedStep ends the episode on a device failure. The agent still
// receives a structurally valid timestep built on the last good
// observation.
func (c *Coordinator) truncatedStep() rl.TimeStep {
	return rl.TimeStep{StepType: rl.StepLast, Discount: 0, Observation: c.lastObservation}
}

// ExecuteAdbCall runs one structured adb call against the device,
// bypassing the episode machinery. Meant for debugging tooling.
func (c *Coordinator) ExecuteAdbCall(request adb.Request) adb.Response {
	return c.sim.CallParser().Parse(request)
}

// Close tears down the task session and the device. Idempotent.
func (c *Coordinator) Close() error {
	c.tm.Stop()
	c.state = StateUnlaunched
	return c.sim.Close()
}

func (c *Coordinator) periodicRestartDue() bool {
	return c.periodicRestart > 0 && !c.launchTime.IsZero() &&
		c.clock.Now().Sub(c.launchTime) >= c.periodicRestart
}

// sendAction translates one validated action into device calls.
func (c *Coordinator) sendAction(action rl.Action) error {
	switch action.Type {
	case rl.ActionRepeat:
		// An explicit no-op: time advances, nothing is sent.
		return nil
	case rl.ActionTouch, rl.ActionLift:
		return c.sim.SendTouch(c.touchBatch(action))
	case rl.ActionKeyDown:
		return c.sim.SendKey(action.Keycode, simulator.KeyDown)
	case rl.ActionKeyUp:
		return c.sim.SendKey(action.Keycode, simulator.KeyUp)
	case rl.ActionKeyPress:
		return c.sim.SendKey(action.Keycode, simulator.KeyPress)
	default:
		return fmt.Errorf("unhandled action type %v", action.Type)
	}
}

// touchBatch builds the full-width touch batch for one action: the
// primary finger, any extra fingers the action carries, padded with
// lifted fingers up to the configured width.
func (c *Coordinator) touchBatch(action rl.Action) []simulator.Touch {
	touches := make([]simulator.Touch, 0, c.numFingers)

	x, y := c.toPixels(action.TouchPosition)
	touches = append(touches, simulator.Touch{
		X: x, Y: y,
		Down:   action.Type == rl.ActionTouch,
		Finger: 0,
	})
	for i, finger := range action.Fingers {
		if len(touches) >= c.numFingers {
			break
		}
		x, y := c.toPixels(finger.Position)
		touches = append(touches, simulator.Touch{
			X: x, Y: y,
			Down:   finger.Down,
			Finger: i + 1,
		})
	}
	for len(touches) < c.numFingers {
		touches = append(touches, simulator.Touch{Finger: len(touches)})
	}
	return touches
}

// liftAllFingers releases every finger, so a new episode never starts
// with a held-over touch from the previous one.
func (c *Coordinator) liftAllFingers() error {
	touches := make([]simulator.Touch, c.numFingers)
	for i := range touches {
		touches[i] = simulator.Touch{Finger: i}
	}
	return c.sim.SendTouch(touches)
}

// toPixels converts a unit-square position to pixel coordinates on
// the probed screen.
func (c *Coordinator) toPixels(p rl.Position) (x, y int) {
	if c.screenW > 1 {
		x = int(p.X * float64(c.screenW-1))
	}
	if c.screenH > 1 {
		y = int(p.Y * float64(c.screenH-1))
	}
	return x, y
}

// observe fetches one observation and stamps it with the microseconds
// elapsed since the previous one. The first observation after a
// launch or reset reports a zero timedelta.
func (c *Coordinator) observe() (*rl.Observation, error) {
	img, err := c.sim.Screenshot()
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	var delta int64
	if !c.lastObservationTime.IsZero() {
		delta = now.Sub(c.lastObservationTime).Microseconds()
	}
	c.lastObservationTime = now

	obs := &rl.Observation{
		Pixels:          img,
		TimedeltaMicros: delta,
		Orientation:     c.orientation,
	}
	c.lastObservation = obs
	return obs, nil
}
