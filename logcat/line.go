// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package logcat

import (
	"regexp"
	"strconv"
	"time"
)

// Line is one parsed logcat entry in the epoch-threadtime format:
//
//	"  1553110400.424  5583  5658 D NostalgicRacer: onSurfaceChanged 480x320"
type Line struct {
	// Timestamp is the device-side time of the entry.
	Timestamp time.Time

	// PID and TID identify the emitting process and thread.
	PID int
	TID int

	// Priority is the single-character logcat priority (V, D, I, W,
	// E, F).
	Priority string

	// Tag is the log tag, everything before the colon.
	Tag string

	// Message is the payload that event listeners match against.
	Message string
}

// linePattern matches "TIME_SEC PID TID PRIORITY TAG: MESSAGE" with an
// epoch-seconds float timestamp.
var linePattern = regexp.MustCompile(
	`^\s*(?P<timestamp>[0-9]+\.[0-9]+)` +
		`\s+(?P<pid>[0-9]+)` +
		`\s+(?P<tid>[0-9]+)` +
		`\s+(?P<priority>.)` +
		`\s+(?P<tag>[^:]*):` +
		` (?P<message>.*)$`)

var (
	timestampIndex = linePattern.SubexpIndex("timestamp")
	pidIndex       = linePattern.SubexpIndex("pid")
	tidIndex       = linePattern.SubexpIndex("tid")
	priorityIndex  = linePattern.SubexpIndex("priority")
	tagIndex       = linePattern.SubexpIndex("tag")
	messageIndex   = linePattern.SubexpIndex("message")
)

// ParseLine parses one raw logcat line. The second return is false for
// empty or malformed lines, which the router skips silently: the
// device interleaves plenty of output that is not in the requested
// format.
func ParseLine(raw string) (Line, bool) {
	if raw == "" {
		return Line{}, false
	}
	match := linePattern.FindStringSubmatch(raw)
	if match == nil {
		return Line{}, false
	}

	seconds, err := strconv.ParseFloat(match[timestampIndex], 64)
	if err != nil {
		return Line{}, false
	}
	pid, err := strconv.Atoi(match[pidIndex])
	if err != nil {
		return Line{}, false
	}
	tid, err := strconv.Atoi(match[tidIndex])
	if err != nil {
		return Line{}, false
	}

	return Line{
		Timestamp: time.Unix(0, int64(seconds*float64(time.Second))),
		PID:       pid,
		TID:       tid,
		Priority:  match[priorityIndex],
		Tag:       match[tagIndex],
		Message:   match[messageIndex],
	}, true
}
