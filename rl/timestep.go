// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package rl

import (
	"fmt"

	"github.com/droidenv/droidenv/simulator"
)

// Observation is everything the agent sees after a step: the screen
// pixels, the wall-clock microseconds since the previous observation,
// a one-hot rotation vector, and any task extras drained from the
// device log since the previous step.
type Observation struct {
	Pixels          simulator.Image
	TimedeltaMicros int64
	// Orientation is one-hot over {0, 90, 180, 270} degrees.
	Orientation [4]uint8
	Extras      map[string][]any
}

// StepType classifies a timestep's position within an episode.
type StepType int

const (
	// StepFirst is the timestep produced by a reset.
	StepFirst StepType = iota
	// StepMid is an ordinary within-episode timestep.
	StepMid
	// StepLast ends the episode. A zero discount marks a true
	// termination; a discount of one marks a truncation.
	StepLast
)

// String returns the uppercase name of the step type.
func (t StepType) String() string {
	switch t {
	case StepFirst:
		return "FIRST"
	case StepMid:
		return "MID"
	case StepLast:
		return "LAST"
	default:
		return fmt.Sprintf("StepType(%d)", int(t))
	}
}

// TimeStep is the environment's reply to one reset or step call.
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation *Observation
}

// First reports whether this timestep began an episode.
func (ts TimeStep) First() bool { return ts.StepType == StepFirst }

// Mid reports whether this timestep is within an episode.
func (ts TimeStep) Mid() bool { return ts.StepType == StepMid }

// Last reports whether this timestep ended an episode.
func (ts TimeStep) Last() bool { return ts.StepType == StepLast }

// FirstStep builds the timestep returned from a reset. Reward and
// discount are always zero on the first step.
func FirstStep(obs *Observation) TimeStep {
	return TimeStep{StepType: StepFirst, Observation: obs}
}

// Transition builds an ordinary within-episode timestep.
func Transition(reward float64, obs *Observation) TimeStep {
	return TimeStep{StepType: StepMid, Reward: reward, Discount: 1, Observation: obs}
}

// Termination builds a final timestep for an episode that truly
// ended, with a zero discount so the agent does not bootstrap past it.
func Termination(reward float64, obs *Observation) TimeStep {
	return TimeStep{StepType: StepLast, Reward: reward, Discount: 0, Observation: obs}
}

// Truncation builds a final timestep for an episode cut short by a
// limit rather than by the task itself. The discount stays one so
// value estimates may bootstrap from the final observation.
func Truncation(reward float64, obs *Observation) TimeStep {
	return TimeStep{StepType: StepLast, Reward: reward, Discount: 1, Observation: obs}
}
