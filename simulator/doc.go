// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package simulator defines the narrow interface to the Android device
// driver, emulator or hardware, and the typed errors that cross it.
//
// The core treats the simulator as a crash-prone external
// collaborator: Launch may block for minutes and fail, any I/O call
// may fail at any time, and the only recovery is a full relaunch. The
// three error types here (LaunchError, SendActionError,
// ReadObservationError) are the complete set the coordinator converts
// into health transitions; everything else propagates as a programmer
// error.
//
// Fake is a deterministic in-memory implementation with scriptable
// failure injection, used throughout the tests and by the demo binary.
// Emulator gRPC plumbing and adb process management live outside this
// repository.
package simulator
