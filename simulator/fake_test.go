// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"context"
	"errors"
	"testing"
)

func TestFakeLaunchFailureInjection(t *testing.T) {
	t.Parallel()

	fake := NewFake(FakeConfig{})
	fake.FailLaunches(2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := fake.Launch(ctx)
		var launchErr *LaunchError
		if !errors.As(err, &launchErr) {
			t.Fatalf("launch %d: got %v, want LaunchError", i, err)
		}
	}
	if err := fake.Launch(ctx); err != nil {
		t.Fatalf("launch after scripted failures: %v", err)
	}
}

func TestFakeScreenshotShape(t *testing.T) {
	t.Parallel()

	fake := NewFake(FakeConfig{ScreenHeight: 10, ScreenWidth: 4})
	if err := fake.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	img, err := fake.Screenshot()
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if img.Height != 10 || img.Width != 4 {
		t.Errorf("dimensions: got %dx%d, want 10x4", img.Height, img.Width)
	}
	if len(img.Pixels) != 10*4*3 {
		t.Errorf("pixel buffer: got %d bytes, want %d", len(img.Pixels), 10*4*3)
	}

	second, err := fake.Screenshot()
	if err != nil {
		t.Fatalf("second Screenshot: %v", err)
	}
	same := true
	for i := range img.Pixels {
		if img.Pixels[i] != second.Pixels[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive frames identical; frames should advance")
	}
}

func TestFakeActionsBeforeLaunchFail(t *testing.T) {
	t.Parallel()

	fake := NewFake(FakeConfig{})
	err := fake.SendTouch([]Touch{{X: 1, Y: 1, Down: true}})
	var sendErr *SendActionError
	if !errors.As(err, &sendErr) {
		t.Errorf("SendTouch before launch: got %v, want SendActionError", err)
	}

	_, err = fake.Screenshot()
	var readErr *ReadObservationError
	if !errors.As(err, &readErr) {
		t.Errorf("Screenshot before launch: got %v, want ReadObservationError", err)
	}
}

func TestFakeHeartbeatOnAction(t *testing.T) {
	t.Parallel()

	fake := NewFake(FakeConfig{HeartbeatOnAction: true})
	if err := fake.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	stream, err := fake.LogStream()
	if err != nil {
		t.Fatalf("LogStream: %v", err)
	}

	if err := fake.SendKey(4, KeyPress); err != nil {
		t.Fatalf("SendKey: %v", err)
	}
	select {
	case line := <-stream.Lines():
		if line == "" {
			t.Error("empty heartbeat line")
		}
	default:
		t.Error("no heartbeat line after action")
	}
}

func TestFakeCloneIndependence(t *testing.T) {
	t.Parallel()

	img := Image{Height: 1, Width: 2, Pixels: []byte{1, 2, 3, 4, 5, 6}}
	cloned := img.Clone()
	cloned.Pixels[0] = 99
	if img.Pixels[0] == 99 {
		t.Error("Clone shares the pixel backing array")
	}
}
