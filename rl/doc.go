// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package rl holds the agent-facing value types of the environment:
// actions, observations, and timesteps.
//
// These are plain data with no behavior beyond validation and
// constructors, kept in a leaf package so the task layer, the
// coordinator, and the public facade can all share them without
// import cycles.
package rl
