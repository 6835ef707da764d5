// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/lib/clock"
	"github.com/droidenv/droidenv/logcat"
	"github.com/droidenv/droidenv/rl"
	"github.com/droidenv/droidenv/telemetry"
)

// Metrics counts task-level events since Start. Snapshot via
// Manager.Metrics.
type Metrics struct {
	// EpisodeSteps is the step count of the episode in progress.
	EpisodeSteps int

	// EpisodesUserExited counts episodes ended because the device left
	// the expected activity.
	EpisodesUserExited int

	// EpisodesEnded counts episodes the task itself declared over.
	EpisodesEnded int

	// EpisodesStepLimit counts episodes truncated by the step limit.
	EpisodesStepLimit int

	// EpisodesDurationLimit counts episodes truncated by the wall
	// clock limit.
	EpisodesDurationLimit int

	// RestartsMaxBadStates counts restart requests raised by the bad
	// state counter.
	RestartsMaxBadStates int
}

// ManagerConfig holds the construction parameters for a Manager.
type ManagerConfig struct {
	// Task is the validated task declaration.
	Task Config

	// MaxBadStates is how many consecutive bad episodes request a
	// simulator restart. Zero means three; negative disables the
	// counter.
	MaxBadStates int

	// CheckInterval is the foreground-activity probe cadence. Zero
	// means the checker default.
	CheckInterval time.Duration

	// MaxFailedActivityExtractions is forwarded to the checker. Zero
	// means its default.
	MaxFailedActivityExtractions int

	// BarrierTimeout bounds the wait for a fresh log line before
	// telemetry is drained. Zero means five seconds; negative waits
	// forever.
	BarrierTimeout time.Duration

	// Clock drives limits, cadences, and step sleeps. Nil means the
	// real clock.
	Clock clock.Clock

	// Logger receives manager lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

const (
	defaultMaxBadStates   = 3
	defaultBarrierTimeout = 5 * time.Second
)

// ErrNotStarted is returned by operations that need a live device
// session before Start established one.
var ErrNotStarted = errors.New("task manager not started")

// Manager drives one task across episodes on one device session.
//
// Start wires the log router, telemetry aggregator, and foreground
// checker to a freshly launched device. SetupTask and ResetTask run
// the declared step sequences with log dispatch paused. RLReset and
// RLStep consume the drained telemetry and decide each episode
// transition. All methods are called from the coordinator goroutine;
// the internal mutex only guards against the router and checker
// goroutines.
type Manager struct {
	task           Config
	rules          []telemetry.Rule
	maxBadStates   int
	checkInterval  time.Duration
	maxFailedExtr  int
	barrierTimeout time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	aggregator  *telemetry.Aggregator
	router      *logcat.Router
	checker     *PeriodicChecker
	interpreter *Interpreter

	mu            sync.Mutex
	metrics       Metrics
	episodeSteps  int
	episodeStart  time.Time
	badStateCount int
	badEpisode    bool
	restartNeeded bool
	lineMark      uint64
}

// NewManager validates the task and builds an idle manager. Call Start
// before anything else.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	rules, err := cfg.Task.Rules()
	if err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxBadStates := cfg.MaxBadStates
	if maxBadStates == 0 {
		maxBadStates = defaultMaxBadStates
	}
	barrierTimeout := cfg.BarrierTimeout
	if barrierTimeout == 0 {
		barrierTimeout = defaultBarrierTimeout
	}

	return &Manager{
		task:           cfg.Task,
		rules:          rules,
		maxBadStates:   maxBadStates,
		checkInterval:  cfg.CheckInterval,
		maxFailedExtr:  cfg.MaxFailedActivityExtractions,
		barrierTimeout: barrierTimeout,
		clock:          clk,
		logger:         logger.With("task", cfg.Task.ID),
	}, nil
}

// Start wires the manager to a device session: a live log stream and
// the driver that answers adb calls. Any previous session is torn
// down first. The restart request and bad-state counter reset, since
// a new session starts clean.
func (m *Manager) Start(stream logcat.Stream, parser adb.CallParser) {
	m.Stop()

	m.aggregator = telemetry.NewAggregator(m.task.ExtrasBufferSize, m.logger)
	m.router = logcat.NewRouter(logcat.RouterConfig{
		Stream:    stream,
		Listeners: m.aggregator.Listeners(m.rules),
		Clock:     m.clock,
		Logger:    m.logger,
	})
	m.checker = StartPeriodicChecker(CheckerConfig{
		Parser:               parser,
		ExpectedActivity:     m.task.ExpectedActivity,
		Interval:             m.checkInterval,
		MaxFailedExtractions: m.maxFailedExtr,
		Clock:                m.clock,
		Logger:               m.logger,
	})
	m.interpreter = NewInterpreter(parser, m.task.ExpectedActivity, m.clock, m.logger)

	m.mu.Lock()
	m.restartNeeded = false
	m.badStateCount = 0
	m.badEpisode = false
	m.lineMark = 0
	m.episodeStart = m.clock.Now()
	m.mu.Unlock()

	m.logger.Info("task session started")
}

// Stop tears down the current session's router and checker. Safe to
// call on an idle manager.
func (m *Manager) Stop() {
	if m.router != nil {
		m.router.Kill()
		m.router = nil
	}
	if m.checker != nil {
		m.checker.Stop()
		m.checker = nil
	}
	m.aggregator = nil
	m.interpreter = nil
}

// SetupTask runs the declared setup steps once per device session,
// with log dispatch paused so install noise never becomes telemetry.
func (m *Manager) SetupTask() error {
	if m.interpreter == nil {
		return ErrNotStarted
	}
	return m.runSteps("setup", m.task.SetupSteps)
}

// ResetTask prepares the device for a new episode: runs the reset
// steps with dispatch paused, zeroes the telemetry aggregator,
// discards stale checker verdicts, and restarts the episode clock.
// The bad-state counter clears unless the finished episode was bad.
func (m *Manager) ResetTask() error {
	if m.interpreter == nil {
		return ErrNotStarted
	}
	err := m.runSteps("reset", m.task.ResetSteps)

	m.aggregator.Reset()
	m.checker.UserExited()

	m.mu.Lock()
	if !m.badEpisode {
		m.badStateCount = 0
	}
	m.badEpisode = false
	m.episodeStart = m.clock.Now()
	m.lineMark = m.router.LineCount()
	m.mu.Unlock()

	return err
}

func (m *Manager) runSteps(phase string, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	m.router.Pause()
	defer m.router.Resume()

	start := m.clock.Now()
	if err := m.interpreter.Interpret(steps); err != nil {
		return fmt.Errorf("%s steps: %w", phase, err)
	}
	m.logger.Debug("steps finished", "phase", phase, "elapsed", m.clock.Now().Sub(start))
	return nil
}

// ShouldRestart reports whether the bad-state counter has requested a
// simulator restart. The request latches until the next Start.
func (m *Manager) ShouldRestart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restartNeeded
}

// RLReset begins an episode: waits for one fresh log line, attaches
// the drained extras to the observation, and returns the FIRST
// timestep. Reward and discount are zero by construction.
func (m *Manager) RLReset(obs *rl.Observation) rl.TimeStep {
	m.mu.Lock()
	m.episodeSteps = 0
	m.metrics.EpisodeSteps = 0
	m.mu.Unlock()

	m.awaitFreshLine()
	if obs != nil {
		obs.Extras = m.aggregator.DrainExtras()
	}
	return rl.FirstStep(obs)
}

// RLStep advances the episode by one timestep: waits for one fresh
// log line, drains the pending telemetry in one critical section, and
// classifies the transition. Episode-ending causes are checked in
// priority order; a user exit beats the task's own end signal, which
// beats the step limit, which beats the wall clock limit. The step
// limit is strict: with a limit of N, step N is still MID and step
// N+1 truncates.
func (m *Manager) RLStep(obs *rl.Observation) rl.TimeStep {
	m.mu.Lock()
	m.episodeSteps++
	m.metrics.EpisodeSteps++
	steps := m.episodeSteps
	start := m.episodeStart
	m.mu.Unlock()

	m.awaitFreshLine()
	reward, extras, episodeEnded := m.aggregator.Drain()
	if obs != nil {
		obs.Extras = extras
	}

	switch {
	case m.checker.UserExited():
		m.logger.Info("episode over: user exited the app")
		m.recordBadState()
		m.count(func(metrics *Metrics) { metrics.EpisodesUserExited++ })
		return rl.Truncation(reward, obs)

	case episodeEnded:
		m.logger.Debug("episode over: task signaled the end")
		m.count(func(metrics *Metrics) { metrics.EpisodesEnded++ })
		return rl.Termination(reward, obs)

	case m.task.MaxEpisodeSteps > 0 && steps > m.task.MaxEpisodeSteps:
		m.logger.Debug("episode over: step limit", "steps", steps)
		m.count(func(metrics *Metrics) { metrics.EpisodesStepLimit++ })
		return rl.Truncation(reward, obs)

	case m.task.MaxEpisodeDuration > 0 && m.clock.Now().Sub(start) >= m.task.MaxEpisodeDuration.Std():
		m.logger.Debug("episode over: duration limit")
		m.count(func(metrics *Metrics) { metrics.EpisodesDurationLimit++ })
		return rl.Truncation(reward, obs)
	}
	return rl.Transition(reward, obs)
}

// Metrics returns a snapshot of the manager's counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// TaskID returns the declared task identifier.
func (m *Manager) TaskID() string { return m.task.ID }

func (m *Manager) count(update func(*Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(&m.metrics)
}

// recordBadState marks the current episode bad and raises the restart
// request once enough consecutive bad episodes accumulate.
func (m *Manager) recordBadState() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.badEpisode = true
	if m.maxBadStates < 0 {
		return
	}
	m.badStateCount++
	if m.badStateCount >= m.maxBadStates && !m.restartNeeded {
		m.logger.Warn("too many consecutive bad episodes, requesting restart",
			"count", m.badStateCount)
		m.restartNeeded = true
		m.metrics.RestartsMaxBadStates++
	}
}

// awaitFreshLine blocks until the router has dispatched at least one
// line beyond the previous mark, so the drained telemetry reflects the
// device's reaction to the latest action. A timeout is logged and
// tolerated: a quiet app is not an error.
func (m *Manager) awaitFreshLine() {
	m.mu.Lock()
	mark := m.lineMark
	m.mu.Unlock()

	if !m.router.WaitForLine(mark, m.barrierTimeout) {
		m.logger.Debug("no fresh log line before the barrier timeout")
	}

	m.mu.Lock()
	m.lineMark = m.router.LineCount()
	m.mu.Unlock()
}
