// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package rl

import "testing"

func TestActionValidate(t *testing.T) {
	t.Parallel()

	valid := []Action{
		{Type: ActionTouch, TouchPosition: Position{X: 0.5, Y: 0.5}},
		{Type: ActionTouch, TouchPosition: Position{X: 0, Y: 1}},
		{Type: ActionLift, TouchPosition: Position{X: 1, Y: 0}},
		{Type: ActionRepeat},
		{Type: ActionKeyPress, Keycode: 66},
		{Type: ActionKeyDown},
		{
			Type:          ActionTouch,
			TouchPosition: Position{X: 0.25, Y: 0.25},
			Fingers:       []Finger{{Position: Position{X: 0.75, Y: 0.75}, Down: true}},
		},
	}
	for _, action := range valid {
		if err := action.Validate(); err != nil {
			t.Errorf("Validate(%v %v) = %v, want nil", action.Type, action.TouchPosition, err)
		}
	}

	invalid := []Action{
		{Type: ActionTouch, TouchPosition: Position{X: -0.1, Y: 0.5}},
		{Type: ActionTouch, TouchPosition: Position{X: 0.5, Y: 1.5}},
		{Type: ActionLift, TouchPosition: Position{X: 2, Y: 0}},
		{Type: ActionKeyPress, Keycode: -1},
		{Type: ActionType(42)},
		{
			Type:    ActionTouch,
			Fingers: []Finger{{Position: Position{X: 1.5, Y: 0}}},
		},
	}
	for _, action := range invalid {
		if err := action.Validate(); err == nil {
			t.Errorf("Validate(%v %v keycode=%d) = nil, want error",
				action.Type, action.TouchPosition, action.Keycode)
		}
	}
}

func TestTimeStepConstructors(t *testing.T) {
	t.Parallel()

	obs := &Observation{}

	first := FirstStep(obs)
	if !first.First() || first.Reward != 0 || first.Discount != 0 {
		t.Errorf("FirstStep = %+v, want FIRST with zero reward and discount", first)
	}

	mid := Transition(2.5, obs)
	if !mid.Mid() || mid.Reward != 2.5 || mid.Discount != 1 {
		t.Errorf("Transition = %+v, want MID with discount 1", mid)
	}

	term := Termination(1, obs)
	if !term.Last() || term.Discount != 0 {
		t.Errorf("Termination = %+v, want LAST with discount 0", term)
	}

	trunc := Truncation(0.5, obs)
	if !trunc.Last() || trunc.Discount != 1 {
		t.Errorf("Truncation = %+v, want LAST with discount 1", trunc)
	}
}
