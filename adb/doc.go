// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package adb defines the structured request/response boundary between
// the environment core and the device-driver layer.
//
// The core never constructs or inspects raw adb shell text. It issues
// typed Requests (get orientation, get foreground activity, put a
// setting, list packages) through the CallParser interface and
// branches on typed Response statuses. How a request becomes adb
// invocations is entirely the driver's concern and lives outside this
// repository.
//
// DeviceSettings aggregates the handful of device-global knobs the
// coordinator applies after every simulator launch: touch indicators,
// pointer location, and the status/navigation bar policy.
package adb
