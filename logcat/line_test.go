// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package logcat

import "testing"

func TestParseLine(t *testing.T) {
	t.Parallel()

	raw := "         1553110400.424  5583  5658 D NostalgicRacer: onSurfaceChanged 480x320"
	line, ok := ParseLine(raw)
	if !ok {
		t.Fatalf("ParseLine(%q) failed", raw)
	}
	if line.PID != 5583 {
		t.Errorf("PID: got %d, want 5583", line.PID)
	}
	if line.TID != 5658 {
		t.Errorf("TID: got %d, want 5658", line.TID)
	}
	if line.Priority != "D" {
		t.Errorf("Priority: got %q, want D", line.Priority)
	}
	if line.Tag != "NostalgicRacer" {
		t.Errorf("Tag: got %q, want NostalgicRacer", line.Tag)
	}
	if line.Message != "onSurfaceChanged 480x320" {
		t.Errorf("Message: got %q", line.Message)
	}
	if line.Timestamp.Unix() != 1553110400 {
		t.Errorf("Timestamp: got %v", line.Timestamp)
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"--------- beginning of main",
		"not a log line at all",
		"1553110400.424 notanumber 5658 D Tag: message",
	} {
		if _, ok := ParseLine(raw); ok {
			t.Errorf("ParseLine(%q) unexpectedly succeeded", raw)
		}
	}
}

func TestParseLineEmptyTag(t *testing.T) {
	t.Parallel()

	line, ok := ParseLine(" 100.5 1 2 I : ping")
	if !ok {
		t.Fatal("ParseLine failed on empty tag")
	}
	if line.Tag != "" {
		t.Errorf("Tag: got %q, want empty", line.Tag)
	}
	if line.Message != "ping" {
		t.Errorf("Message: got %q, want ping", line.Message)
	}
}
