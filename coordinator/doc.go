// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator owns the simulator lifecycle and translates
// agent actions into device interactions.
//
// A simulator is a crashy dependency: launches fail, actions get lost,
// screenshots time out. The coordinator wraps all of that in a small
// health state machine. Launch retries the full boot-and-setup
// sequence a bounded number of times; a mid-episode device failure
// marks the coordinator unhealthy and ends the episode with one
// truncated timestep; the next reset relaunches. Devices also rot
// slowly, so an optional timer forces a relaunch between episodes at a
// fixed cadence.
package coordinator
