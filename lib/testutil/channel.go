// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// TB is the subset of testing.TB these helpers need. Declared locally
// so the package has no import of the testing package itself.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the
// test.
//
//	verdict := testutil.RequireReceive(t, verdicts, 5*time.Second, "waiting for verdict")
func RequireReceive[T any](t TB, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a value: %s", message(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, message(msgAndArgs))
	}
	panic("unreachable")
}

// RequireSend sends v on ch within timeout, or fails the test.
func RequireSend[T any](t TB, ch chan<- T, v T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, message(msgAndArgs))
	}
}

// RequireClosed waits for ch to close (or deliver a value) within
// timeout, or fails the test. Use for completion channels that signal
// by closing.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for close: %s", timeout, message(msgAndArgs))
	}
}

// message formats the optional trailing arguments: a bare string, or a
// format string plus args.
func message(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "(no message)"
	case 1:
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	default:
		if format, ok := msgAndArgs[0].(string); ok {
			return fmt.Sprintf(format, msgAndArgs[1:]...)
		}
		return fmt.Sprintf("%v", msgAndArgs)
	}
}
