// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package rl

import "fmt"

// ActionType selects the gesture or key event an Action describes.
type ActionType int

const (
	// ActionTouch presses the primary finger at TouchPosition.
	ActionTouch ActionType = iota
	// ActionLift releases the primary finger at TouchPosition.
	ActionLift
	// ActionRepeat re-sends nothing to the device. It exists so
	// agents can explicitly "do nothing" for a step while still
	// advancing time and collecting an observation.
	ActionRepeat
	// ActionKeyDown presses Keycode.
	ActionKeyDown
	// ActionKeyUp releases Keycode.
	ActionKeyUp
	// ActionKeyPress presses and releases Keycode.
	ActionKeyPress
)

// String returns the lowercase name of the action type.
func (t ActionType) String() string {
	switch t {
	case ActionTouch:
		return "touch"
	case ActionLift:
		return "lift"
	case ActionRepeat:
		return "repeat"
	case ActionKeyDown:
		return "keydown"
	case ActionKeyUp:
		return "keyup"
	case ActionKeyPress:
		return "keypress"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// Position is a screen coordinate normalized to [0, 1] on both axes.
// X runs left to right, Y runs top to bottom.
type Position struct {
	X float64
	Y float64
}

// Finger is the position and contact state of one additional touch
// point in a multitouch action.
type Finger struct {
	Position Position
	// Down reports whether this finger is touching the screen.
	Down bool
}

// Action is one agent decision per environment step.
//
// For ActionTouch and ActionLift, TouchPosition locates the primary
// finger and Fingers carries any additional touch points. Key actions
// use Keycode and ignore the touch fields.
type Action struct {
	Type          ActionType
	TouchPosition Position
	Keycode       int
	Fingers       []Finger
}

// Validate reports whether the action is well formed: a known type,
// touch coordinates inside the unit square, and a nonnegative keycode.
// Invalid actions are rejected before anything reaches the device.
func (a Action) Validate() error {
	switch a.Type {
	case ActionTouch, ActionLift:
		if err := validatePosition(a.TouchPosition); err != nil {
			return err
		}
		for i, finger := range a.Fingers {
			if err := validatePosition(finger.Position); err != nil {
				return fmt.Errorf("finger %d: %w", i+1, err)
			}
		}
		return nil
	case ActionRepeat:
		return nil
	case ActionKeyDown, ActionKeyUp, ActionKeyPress:
		if a.Keycode < 0 {
			return fmt.Errorf("negative keycode %d", a.Keycode)
		}
		return nil
	default:
		return fmt.Errorf("unknown action type %d", int(a.Type))
	}
}

func validatePosition(p Position) error {
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return fmt.Errorf("touch position (%g, %g) outside the unit square", p.X, p.Y)
	}
	return nil
}
