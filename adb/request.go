// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package adb

// Status classifies the outcome of a parsed adb call.
type Status int

const (
	// StatusUnknown is the zero value; a response carrying it is a
	// driver bug.
	StatusUnknown Status = iota

	// StatusOK means the call succeeded.
	StatusOK

	// StatusFailedPrecondition means the device was not in a state
	// where the call could run (no device, screen locked, ...).
	StatusFailedPrecondition

	// StatusAdbError means adb itself reported a failure.
	StatusAdbError

	// StatusTimeout means the driver gave up waiting on the device.
	StatusTimeout

	// StatusInternalError means the driver failed outside adb.
	StatusInternalError

	// StatusUnknownCommand means the driver does not implement the
	// requested call. Always a programmer error in the core.
	StatusUnknownCommand
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailedPrecondition:
		return "FAILED_PRECONDITION"
	case StatusAdbError:
		return "ADB_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusUnknownCommand:
		return "UNKNOWN_COMMAND"
	default:
		return "UNKNOWN"
	}
}

// SettingsNamespace selects the Android settings table a put targets.
type SettingsNamespace int

const (
	// NamespaceSystem is the per-user "system" settings table.
	NamespaceSystem SettingsNamespace = iota

	// NamespaceGlobal is the device-wide "global" settings table.
	NamespaceGlobal

	// NamespaceSecure is the protected "secure" settings table.
	NamespaceSecure
)

// Request is a structured adb call. Exactly one of the pointer fields
// is populated; a request with zero or several populated fields is
// malformed and drivers answer it with StatusUnknownCommand.
type Request struct {
	GetOrientation     *GetOrientationRequest
	GetActivity        *GetActivityRequest
	Settings           *SettingsRequest
	PackageManagerList *PackageManagerListRequest
	ForceStop          *ForceStopRequest
	StartActivity      *StartActivityRequest
}

// GetOrientationRequest reads the device rotation (0-3 quarter turns).
type GetOrientationRequest struct{}

// GetActivityRequest reads the foreground activity name.
type GetActivityRequest struct{}

// SettingsRequest puts one key/value pair into a settings namespace.
type SettingsRequest struct {
	Namespace SettingsNamespace
	Key       string
	Value     string
}

// PackageManagerListRequest lists installed package names.
type PackageManagerListRequest struct{}

// ForceStopRequest force-stops the named package.
type ForceStopRequest struct {
	Package string
}

// StartActivityRequest launches an activity in the foreground.
// Activity is the full "package/activity" component name. ForceStop
// stops any running instance of the package first so the activity
// starts from a clean state.
type StartActivityRequest struct {
	Activity  string
	ForceStop bool
}

// Response is the structured answer to a Request. Payload fields are
// only meaningful when Status is StatusOK.
type Response struct {
	Status Status

	// Error carries the driver's failure detail for logs. Never
	// parsed by the core.
	Error string

	// Orientation is the rotation in quarter turns, 0-3, for
	// GetOrientation calls.
	Orientation int

	// ActivityName is the foreground "package/activity" string for
	// GetActivity calls.
	ActivityName string

	// Packages lists installed package names for PackageManagerList
	// calls.
	Packages []string
}

// CallParser executes structured adb calls. Implementations live in
// the device-driver layer; the fake in this package serves tests and
// the demo binary.
type CallParser interface {
	Parse(request Request) Response
}
