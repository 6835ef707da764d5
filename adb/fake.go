// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package adb

import "sync"

// FakeCallParser is an in-memory CallParser for tests and the demo
// binary. Every request is recorded; responses come from the
// configurable hooks, defaulting to a healthy device.
type FakeCallParser struct {
	mu       sync.Mutex
	requests []Request

	// Fields read at Parse time. Set them before handing the fake to
	// the component under test.
	orientation  int
	activityName string
	packages     []string
	failWith     *Response
}

// NewFakeCallParser returns a fake reporting orientation 0 and the
// given foreground activity.
func NewFakeCallParser(activityName string) *FakeCallParser {
	return &FakeCallParser{activityName: activityName}
}

// SetActivity changes the reported foreground activity.
func (f *FakeCallParser) SetActivity(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityName = name
}

// SetOrientation changes the reported rotation (0-3).
func (f *FakeCallParser) SetOrientation(orientation int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orientation = orientation
}

// SetPackages changes the reported installed package list.
func (f *FakeCallParser) SetPackages(packages []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages = packages
}

// FailWith makes every subsequent Parse return the given response.
// Pass nil to restore healthy behavior.
func (f *FakeCallParser) FailWith(response *Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = response
}

// Requests returns a copy of every request parsed so far.
func (f *FakeCallParser) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Parse implements CallParser.
func (f *FakeCallParser) Parse(request Request) Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)

	if f.failWith != nil {
		return *f.failWith
	}

	switch {
	case request.GetOrientation != nil:
		return Response{Status: StatusOK, Orientation: f.orientation}
	case request.GetActivity != nil:
		return Response{Status: StatusOK, ActivityName: f.activityName}
	case request.Settings != nil:
		return Response{Status: StatusOK}
	case request.PackageManagerList != nil:
		return Response{Status: StatusOK, Packages: append([]string(nil), f.packages...)}
	case request.ForceStop != nil:
		return Response{Status: StatusOK}
	case request.StartActivity != nil:
		f.activityName = request.StartActivity.Activity
		return Response{Status: StatusOK}
	default:
		return Response{Status: StatusUnknownCommand, Error: "empty request"}
	}
}
