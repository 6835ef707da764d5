// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/lib/clock"
	"github.com/droidenv/droidenv/rl"
	"github.com/droidenv/droidenv/simulator"
	"github.com/droidenv/droidenv/task"
)

const testActivity = "com.example/.Main"

type fixture struct {
	coordinator *Coordinator
	sim         *simulator.Fake
	clock       *clock.FakeClock
	manager     *task.Manager
}

// newFixture wires a coordinator over the fake simulator. The fake
// emits a heartbeat log line per delivered action, which satisfies the
// task manager's freshness barrier; quiet steps fall back to a short
// real-time barrier timeout.
func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	return newFixtureWithTask(t, nil, mutate)
}

func newFixtureWithTask(t *testing.T, mutateTask func(*task.Config), mutate func(*Config)) *fixture {
	t.Helper()

	taskConfig := task.Config{
		ID:               "coordinator-test",
		ExpectedActivity: testActivity,
		LogParsing: task.LogParsingConfig{
			Regexps: task.LogRegexps{
				Reward: []string{`^reward: ([0-9.]+)$`},
			},
		},
	}
	if mutateTask != nil {
		mutateTask(&taskConfig)
	}
	manager, err := task.NewManager(task.ManagerConfig{
		Task:           taskConfig,
		CheckInterval:  time.Hour,
		BarrierTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	f := &fixture{
		sim: simulator.NewFake(simulator.FakeConfig{
			ScreenHeight:      40,
			ScreenWidth:       30,
			Activity:          testActivity,
			HeartbeatOnAction: true,
		}),
		clock:   clock.Fake(time.Unix(9000, 0)),
		manager: manager,
	}
	cfg := Config{
		Simulator: f.sim,
		Task:      manager,
		Clock:     f.clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.coordinator, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { f.coordinator.Close() })
	return f
}

func TestLaunchRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.sim.FailLaunches(2)

	if err := f.coordinator.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if f.coordinator.State() != StateHealthy {
		t.Errorf("State = %v, want HEALTHY", f.coordinator.State())
	}

	metrics := f.coordinator.Metrics()
	if metrics.LaunchAttempts != 3 || metrics.FailuresLaunch != 2 || metrics.Launches != 1 {
		t.Errorf("metrics = %+v, want 3 attempts, 2 launch failures, 1 success", metrics)
	}
}

func TestLaunchExhaustionIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.sim.FailLaunches(3)

	err := f.coordinator.Launch(context.Background())
	var restartErr *TooManyRestartsError
	if !errors.As(err, &restartErr) {
		t.Fatalf("Launch = %v, want *TooManyRestartsError", err)
	}
	if restartErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", restartErr.Attempts)
	}
	if f.coordinator.State() == StateHealthy {
		t.Error("State = HEALTHY after launch exhaustion")
	}
}

func TestLaunchToleratesThreeFailuresNotFour(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config) { cfg.MaxLaunchAttempts = 4 })
	f.sim.FailLaunches(3)

	// Three consecutive launch failures followed by a success: the
	// reset still comes back FIRST and healthy, with every failure
	// counted.
	first, err := f.coordinator.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !first.First() {
		t.Fatalf("Reset = %+v, want FIRST", first)
	}
	if f.coordinator.State() != StateHealthy {
		t.Errorf("State = %v, want HEALTHY", f.coordinator.State())
	}
	metrics := f.coordinator.Metrics()
	if metrics.FailuresLaunch != 3 || metrics.LaunchAttempts != 4 || metrics.Launches != 1 {
		t.Errorf("metrics = %+v, want 3 launch failures absorbed in one sequence", metrics)
	}

	// A fourth consecutive failure exhausts the sequence.
	f.sim.FailLaunches(4)
	err = f.coordinator.Launch(context.Background())
	var restartErr *TooManyRestartsError
	if !errors.As(err, &restartErr) {
		t.Fatalf("Launch = %v, want *TooManyRestartsError", err)
	}
	if restartErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", restartErr.Attempts)
	}
}

func TestResetLiftsFingersBeforeResetSteps(t *testing.T) {
	t.Parallel()

	f := newFixtureWithTask(t, func(cfg *task.Config) {
		cfg.ResetSteps = []task.Step{
			{Adb: &task.AdbStep{ForceStop: "com.example"}},
		}
	}, nil)

	// The finger lift fails on the first reset attempt. The lift
	// precedes the reset steps, so no force-stop reaches the device
	// until the relaunched second attempt succeeds end to end.
	f.sim.FailActions(1)
	first, err := f.coordinator.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !first.First() {
		t.Fatalf("Reset = %+v, want FIRST", first)
	}

	forceStops := 0
	for _, request := range f.sim.Parser().Requests() {
		if request.ForceStop != nil {
			forceStops++
		}
	}
	if forceStops != 1 {
		t.Errorf("force-stop requests = %d, want 1 (none before a successful lift)", forceStops)
	}
	metrics := f.coordinator.Metrics()
	if metrics.FailuresSendAction != 1 || metrics.FailuresResetSteps != 0 {
		t.Errorf("metrics = %+v, want one lift failure and no reset-step failures", metrics)
	}
}

func TestResetAndStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	first, err := f.coordinator.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !first.First() {
		t.Fatalf("Reset = %+v, want FIRST", first)
	}
	obs := first.Observation
	if obs == nil {
		t.Fatal("Reset observation is nil")
	}
	if obs.Pixels.Height != 40 || obs.Pixels.Width != 30 || len(obs.Pixels.Pixels) != 40*30*3 {
		t.Errorf("pixels = %dx%d (%d bytes), want 40x30x3",
			obs.Pixels.Height, obs.Pixels.Width, len(obs.Pixels.Pixels))
	}
	if obs.Orientation != [4]uint8{1, 0, 0, 0} {
		t.Errorf("orientation = %v, want one-hot rotation 0", obs.Orientation)
	}
	if obs.TimedeltaMicros != 0 {
		t.Errorf("first timedelta = %d, want 0", obs.TimedeltaMicros)
	}

	f.clock.Advance(100 * time.Millisecond)
	step, err := f.coordinator.Step(rl.Action{
		Type:          rl.ActionTouch,
		TouchPosition: rl.Position{X: 0.5, Y: 0.5},
	})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !step.Mid() {
		t.Fatalf("Step = %+v, want MID", step)
	}
	if step.Observation.TimedeltaMicros != 100_000 {
		t.Errorf("timedelta = %d, want 100000", step.Observation.TimedeltaMicros)
	}
}

func TestStepRejectsInvalidAction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	_, err := f.coordinator.Step(rl.Action{
		Type:          rl.ActionTouch,
		TouchPosition: rl.Position{X: 2, Y: 0},
	})
	if err == nil {
		t.Fatal("Step accepted an out-of-range touch position")
	}
}

func TestSendFailureTruncatesAndRelaunches(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	f.sim.FailActions(1)
	step, err := f.coordinator.Step(rl.Action{Type: rl.ActionTouch})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !step.Last() || step.Reward != 0 || step.Discount != 0 {
		t.Fatalf("Step = %+v, want LAST with zero reward and discount", step)
	}
	if step.Observation == nil {
		t.Error("failure timestep lost the cached observation")
	}
	if f.coordinator.State() != StateUnhealthy {
		t.Fatalf("State = %v, want UNHEALTHY", f.coordinator.State())
	}
	if metrics := f.coordinator.Metrics(); metrics.FailuresSendAction != 1 {
		t.Errorf("FailuresSendAction = %d, want 1", metrics.FailuresSendAction)
	}

	// The next reset relaunches and recovers.
	first, err := f.coordinator.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset after failure: %v", err)
	}
	if !first.First() {
		t.Fatalf("Reset = %+v, want FIRST", first)
	}
	metrics := f.coordinator.Metrics()
	if metrics.Launches != 2 || metrics.RelaunchesUnhealthy != 1 {
		t.Errorf("metrics = %+v, want a second launch triggered by ill health", metrics)
	}
}

func TestObservationFailureTruncates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	f.sim.FailScreenshots(1)
	step, err := f.coordinator.Step(rl.Action{Type: rl.ActionTouch})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !step.Last() || step.Discount != 0 {
		t.Fatalf("Step = %+v, want LAST with discount 0", step)
	}
	if f.coordinator.State() != StateUnhealthy {
		t.Errorf("State = %v, want UNHEALTHY", f.coordinator.State())
	}
	if metrics := f.coordinator.Metrics(); metrics.FailuresFetchObservation != 1 {
		t.Errorf("FailuresFetchObservation = %d, want 1", metrics.FailuresFetchObservation)
	}
}

func TestPeriodicRestart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *Config) {
		cfg.PeriodicRestartInterval = time.Hour
	})

	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if metrics := f.coordinator.Metrics(); metrics.Launches != 1 {
		t.Fatalf("Launches = %d, want 1", metrics.Launches)
	}

	// Under an hour of uptime: no relaunch between episodes.
	f.clock.Advance(30 * time.Minute)
	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if metrics := f.coordinator.Metrics(); metrics.Launches != 1 || metrics.RelaunchesPeriodic != 0 {
		t.Fatalf("metrics = %+v, want no periodic relaunch yet", f.coordinator.Metrics())
	}

	f.clock.Advance(time.Hour)
	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	metrics := f.coordinator.Metrics()
	if metrics.Launches != 2 || metrics.RelaunchesPeriodic != 1 {
		t.Errorf("metrics = %+v, want one periodic relaunch", metrics)
	}
}

func TestRepeatActionSendsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.coordinator.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	f.sim.FailActions(1)
	// REPEAT never reaches the device, so the scripted failure must
	// not fire and the step stays MID.
	step, err := f.coordinator.Step(rl.Action{Type: rl.ActionRepeat})
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !step.Mid() {
		t.Fatalf("Step = %+v, want MID", step)
	}
	if f.coordinator.State() != StateHealthy {
		t.Errorf("State = %v, want HEALTHY", f.coordinator.State())
	}
}

func TestExecuteAdbCall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.coordinator.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	response := f.coordinator.ExecuteAdbCall(adb.Request{
		GetActivity: &adb.GetActivityRequest{},
	})
	if response.Status != adb.StatusOK || response.ActivityName != testActivity {
		t.Errorf("response = %+v, want the fake's foreground activity", response)
	}
}
