// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package task defines what the agent is asked to do on the device and
// manages one task's lifecycle across episodes.
//
// A task is declared in YAML: the activity the agent must stay in,
// episode limits, log-parsing rules that turn app log lines into
// rewards and extras, and the adb step sequences that install and
// reset the app. The Manager ties the pieces together at run time: it
// owns the log router and telemetry aggregator, runs setup and reset
// steps with the router paused, watches the foreground activity on a
// periodic checker, and converts each drained telemetry snapshot into
// an episode transition.
package task
