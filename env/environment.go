// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"context"
	"log/slog"

	"github.com/droidenv/droidenv/coordinator"
	"github.com/droidenv/droidenv/rl"
)

// Environment is the standard RL interface over one device and task.
//
// Step after an episode-ending timestep resets automatically, so an
// agent loop never has to special-case episode boundaries. All methods
// must be called from a single goroutine.
type Environment struct {
	coordinator *coordinator.Coordinator
	logger      *slog.Logger

	latest    rl.TimeStep
	episodes  int
	resetNext bool
}

// New wraps a coordinator. The device is launched on the first Reset.
func New(c *coordinator.Coordinator, logger *slog.Logger) *Environment {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Environment{coordinator: c, logger: logger, resetNext: true}
}

// Reset starts a new episode and returns its FIRST timestep.
func (e *Environment) Reset(ctx context.Context) (rl.TimeStep, error) {
	ts, err := e.coordinator.Reset(ctx)
	if err != nil {
		return rl.TimeStep{}, err
	}
	e.latest = ts
	e.resetNext = false
	e.episodes++
	e.logger.Info("episode started", "episode", e.episodes)
	return ts, nil
}

// Step applies one action. If the previous timestep ended the episode,
// the action is discarded and a fresh episode's FIRST timestep is
// returned instead.
func (e *Environment) Step(ctx context.Context, action rl.Action) (rl.TimeStep, error) {
	if e.resetNext {
		return e.Reset(ctx)
	}

	ts, err := e.coordinator.Step(action)
	if err != nil {
		return rl.TimeStep{}, err
	}
	e.latest = ts
	if ts.Last() {
		e.resetNext = true
	}
	return ts, nil
}

// Latest returns the most recent timestep.
func (e *Environment) Latest() rl.TimeStep { return e.latest }

// Episodes returns the number of episodes started.
func (e *Environment) Episodes() int { return e.episodes }

// Close tears down the coordinator and the device.
func (e *Environment) Close() error {
	e.logger.Info("environment closing", "episodes", e.episodes)
	return e.coordinator.Close()
}
