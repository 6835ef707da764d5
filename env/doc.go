// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// Package env is the agent-facing entry point: a reset/step/close
// facade over the coordinator with the usual episode conveniences.
package env
