// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package adb

import (
	"fmt"
	"log/slog"
)

// SettingsConfig selects the device-global presentation knobs applied
// after every simulator launch.
type SettingsConfig struct {
	// ShowTouches displays circles at touch positions.
	ShowTouches bool

	// ShowPointerLocation displays crosshair lines at the pointer.
	ShowPointerLocation bool

	// ShowStatusBar keeps the top status bar visible; hidden bars
	// keep the full screen for the task.
	ShowStatusBar bool

	// ShowNavigationBar keeps the bottom navigation bar visible.
	ShowNavigationBar bool
}

// DeviceSettings applies SettingsConfig and reads the device
// orientation through a CallParser.
type DeviceSettings struct {
	parser CallParser
	logger *slog.Logger
}

// NewDeviceSettings returns a DeviceSettings over the given parser. A
// nil logger discards messages.
func NewDeviceSettings(parser CallParser, logger *slog.Logger) *DeviceSettings {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DeviceSettings{parser: parser, logger: logger}
}

// Apply pushes the configured settings to the device. Returns the
// first failure: the coordinator treats any settings failure as a
// launch failure and retries the whole sequence.
func (d *DeviceSettings) Apply(config SettingsConfig) error {
	if err := d.putSystem("show_touches", boolSetting(config.ShowTouches)); err != nil {
		return err
	}
	if err := d.putSystem("pointer_location", boolSetting(config.ShowPointerLocation)); err != nil {
		return err
	}
	return d.put(NamespaceGlobal, "policy_control", barPolicy(config))
}

// Orientation fetches the device rotation as a 4-element one-hot
// vector.
func (d *DeviceSettings) Orientation() ([4]uint8, error) {
	var onehot [4]uint8

	response := d.parser.Parse(Request{GetOrientation: &GetOrientationRequest{}})
	if response.Status != StatusOK {
		return onehot, fmt.Errorf("get orientation: %s: %s", response.Status, response.Error)
	}
	if response.Orientation < 0 || response.Orientation > 3 {
		return onehot, fmt.Errorf("orientation %d out of range", response.Orientation)
	}
	onehot[response.Orientation] = 1
	return onehot, nil
}

func (d *DeviceSettings) putSystem(key, value string) error {
	return d.put(NamespaceSystem, key, value)
}

func (d *DeviceSettings) put(namespace SettingsNamespace, key, value string) error {
	response := d.parser.Parse(Request{Settings: &SettingsRequest{
		Namespace: namespace,
		Key:       key,
		Value:     value,
	}})
	if response.Status != StatusOK {
		return fmt.Errorf("settings put %s=%s: %s: %s", key, value, response.Status, response.Error)
	}
	d.logger.Debug("device setting applied", "key", key, "value", value)
	return nil
}

func boolSetting(enabled bool) string {
	if enabled {
		return "1"
	}
	return "0"
}

// barPolicy maps the bar visibility pair onto Android's immersive
// policy_control values.
func barPolicy(config SettingsConfig) string {
	switch {
	case config.ShowNavigationBar && config.ShowStatusBar:
		return "null*"
	case config.ShowNavigationBar:
		return "immersive.status=*"
	case config.ShowStatusBar:
		return "immersive.navigation=*"
	default:
		return "immersive.full=*"
	}
}
