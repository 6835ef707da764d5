// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/lib/clock"
)

var (
	// ErrAppScreenNotReached means the expected activity never came to
	// the foreground within a wait_for_app_screen timeout.
	ErrAppScreenNotReached = errors.New("expected app screen not reached")

	// ErrPackageNotInstalled means a check_install condition timed out
	// without the package appearing in the installed list.
	ErrPackageNotInstalled = errors.New("package not installed")
)

// StepCommandError reports a setup or reset step that failed on every
// attempt. The wrapped error is the last attempt's failure.
type StepCommandError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepCommandError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *StepCommandError) Unwrap() error { return e.Err }

// Step is one entry of a setup or reset sequence. Exactly one of Sleep
// and Adb is set. A step may carry a success condition that is probed
// after the command runs; the whole step retries when either part
// fails.
type Step struct {
	Sleep            Duration          `yaml:"sleep,omitempty"`
	Adb              *AdbStep          `yaml:"adb,omitempty"`
	SuccessCondition *SuccessCondition `yaml:"success_condition,omitempty"`
}

func (s Step) validate() error {
	if s.Sleep < 0 {
		return fmt.Errorf("negative sleep %s", s.Sleep.Std())
	}
	hasSleep := s.Sleep > 0
	hasAdb := s.Adb != nil
	if hasSleep == hasAdb {
		return errors.New("exactly one of sleep and adb must be set")
	}
	if hasAdb {
		if err := s.Adb.validate(); err != nil {
			return err
		}
	}
	if s.SuccessCondition != nil {
		return s.SuccessCondition.validate()
	}
	return nil
}

// describe names the step for errors and logs.
func (s Step) describe() string {
	switch {
	case s.Adb != nil:
		return s.Adb.describe()
	case s.Sleep > 0:
		return fmt.Sprintf("sleep %s", s.Sleep.Std())
	default:
		return "empty step"
	}
}

// AdbStep is one structured adb command. Exactly one field is set.
type AdbStep struct {
	// ForceStop names a package to force-stop.
	ForceStop string `yaml:"force_stop,omitempty"`

	// StartActivity launches an activity in the foreground.
	StartActivity *StartActivityStep `yaml:"start_activity,omitempty"`

	// Settings puts one key/value pair into a settings namespace.
	Settings *SettingsStep `yaml:"settings,omitempty"`
}

func (s *AdbStep) validate() error {
	set := 0
	if s.ForceStop != "" {
		set++
	}
	if s.StartActivity != nil {
		set++
		if s.StartActivity.Activity == "" {
			return errors.New("start_activity: activity is required")
		}
	}
	if s.Settings != nil {
		set++
		if s.Settings.Key == "" {
			return errors.New("settings: key is required")
		}
		if _, err := s.Settings.namespace(); err != nil {
			return err
		}
	}
	if set != 1 {
		return errors.New("adb step must set exactly one command")
	}
	return nil
}

func (s *AdbStep) describe() string {
	switch {
	case s.ForceStop != "":
		return fmt.Sprintf("adb force-stop %s", s.ForceStop)
	case s.StartActivity != nil:
		return fmt.Sprintf("adb start-activity %s", s.StartActivity.Activity)
	case s.Settings != nil:
		return fmt.Sprintf("adb settings put %s %s", s.Settings.Namespace, s.Settings.Key)
	default:
		return "adb (empty)"
	}
}

// request translates the step into the driver request.
func (s *AdbStep) request() adb.Request {
	switch {
	case s.ForceStop != "":
		return adb.Request{ForceStop: &adb.ForceStopRequest{Package: s.ForceStop}}
	case s.StartActivity != nil:
		return adb.Request{StartActivity: &adb.StartActivityRequest{
			Activity:  s.StartActivity.Activity,
			ForceStop: s.StartActivity.ForceStop,
		}}
	case s.Settings != nil:
		namespace, _ := s.Settings.namespace()
		return adb.Request{Settings: &adb.SettingsRequest{
			Namespace: namespace,
			Key:       s.Settings.Key,
			Value:     s.Settings.Value,
		}}
	default:
		return adb.Request{}
	}
}

// StartActivityStep launches the named "package/activity" component,
// optionally force-stopping the package first.
type StartActivityStep struct {
	Activity  string `yaml:"activity"`
	ForceStop bool   `yaml:"force_stop"`
}

// SettingsStep puts one value into an Android settings namespace.
type SettingsStep struct {
	// Namespace is "system", "global", or "secure".
	Namespace string `yaml:"namespace"`
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
}

func (s *SettingsStep) namespace() (adb.SettingsNamespace, error) {
	switch s.Namespace {
	case "system":
		return adb.NamespaceSystem, nil
	case "global":
		return adb.NamespaceGlobal, nil
	case "secure":
		return adb.NamespaceSecure, nil
	default:
		return 0, fmt.Errorf("settings: unknown namespace %q", s.Namespace)
	}
}

// SuccessCondition is probed after a step's command runs. The step
// only counts as done once the condition holds.
type SuccessCondition struct {
	// NumRetries raises the per-step attempt budget above the default
	// of three. Values below the default are ignored.
	NumRetries int `yaml:"num_retries"`

	WaitForAppScreen *WaitForAppScreenCondition `yaml:"wait_for_app_screen,omitempty"`
	CheckInstall     *CheckInstallCondition     `yaml:"check_install,omitempty"`
}

func (c *SuccessCondition) validate() error {
	if c.WaitForAppScreen != nil && c.CheckInstall != nil {
		return errors.New("success_condition: wait_for_app_screen and check_install are mutually exclusive")
	}
	if c.CheckInstall != nil && c.CheckInstall.Package == "" {
		return errors.New("check_install: package is required")
	}
	return nil
}

// WaitForAppScreenCondition polls the foreground activity until it
// matches. Activity defaults to the task's expected activity.
type WaitForAppScreenCondition struct {
	Activity string   `yaml:"activity"`
	Timeout  Duration `yaml:"timeout"`
}

// CheckInstallCondition polls the installed package list until the
// package appears.
type CheckInstallCondition struct {
	Package string   `yaml:"package"`
	Timeout Duration `yaml:"timeout"`
}

const (
	defaultStepAttempts     = 3
	defaultConditionTimeout = 10 * time.Second
	conditionPollInterval   = 100 * time.Millisecond
)

// Interpreter executes step sequences against a device.
type Interpreter struct {
	parser          adb.CallParser
	defaultActivity string
	clock           clock.Clock
	logger          *slog.Logger
}

// NewInterpreter builds an interpreter bound to one device driver.
// defaultActivity fills wait_for_app_screen conditions that omit the
// activity.
func NewInterpreter(parser adb.CallParser, defaultActivity string, clk clock.Clock, logger *slog.Logger) *Interpreter {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Interpreter{
		parser:          parser,
		defaultActivity: defaultActivity,
		clock:           clk,
		logger:          logger,
	}
}

// Interpret runs the steps in order, stopping at the first step that
// exhausts its attempts. The returned error is always a
// *StepCommandError on failure.
func (it *Interpreter) Interpret(steps []Step) error {
	for _, step := range steps {
		if err := it.runStep(step); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) runStep(step Step) error {
	attempts := defaultStepAttempts
	if step.SuccessCondition != nil && step.SuccessCondition.NumRetries > attempts {
		attempts = step.SuccessCondition.NumRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr != nil {
			it.logger.Warn("retrying step",
				"step", step.describe(), "attempt", attempt, "error", lastErr)
		}
		if err := it.execute(step); err != nil {
			lastErr = err
			continue
		}
		if err := it.checkSuccess(step.SuccessCondition); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return &StepCommandError{Step: step.describe(), Attempts: attempts, Err: lastErr}
}

func (it *Interpreter) execute(step Step) error {
	if step.Sleep > 0 {
		it.clock.Sleep(step.Sleep.Std())
		return nil
	}
	if step.Adb == nil {
		return nil
	}
	response := it.parser.Parse(step.Adb.request())
	if response.Status != adb.StatusOK {
		return fmt.Errorf("%s: %s", response.Status, response.Error)
	}
	return nil
}

func (it *Interpreter) checkSuccess(condition *SuccessCondition) error {
	if condition == nil {
		return nil
	}
	switch {
	case condition.WaitForAppScreen != nil:
		return it.waitForAppScreen(condition.WaitForAppScreen)
	case condition.CheckInstall != nil:
		return it.checkInstall(condition.CheckInstall)
	default:
		return nil
	}
}

func (it *Interpreter) waitForAppScreen(condition *WaitForAppScreenCondition) error {
	activity := condition.Activity
	if activity == "" {
		activity = it.defaultActivity
	}
	if activity == "" {
		return nil
	}
	return it.poll(condition.Timeout, ErrAppScreenNotReached, func() bool {
		response := it.parser.Parse(adb.Request{GetActivity: &adb.GetActivityRequest{}})
		return response.Status == adb.StatusOK && response.ActivityName == activity
	})
}

func (it *Interpreter) checkInstall(condition *CheckInstallCondition) error {
	return it.poll(condition.Timeout, ErrPackageNotInstalled, func() bool {
		response := it.parser.Parse(adb.Request{PackageManagerList: &adb.PackageManagerListRequest{}})
		if response.Status != adb.StatusOK {
			return false
		}
		for _, pkg := range response.Packages {
			if pkg == condition.Package {
				return true
			}
		}
		return false
	})
}

// poll probes the condition until it holds or the timeout elapses. The
// deadline is checked before each sleep so a condition that can never
// hold fails in bounded time even under a fake clock.
func (it *Interpreter) poll(timeout Duration, timeoutErr error, probe func() bool) error {
	limit := timeout.Std()
	if limit <= 0 {
		limit = defaultConditionTimeout
	}
	deadline := it.clock.Now().Add(limit)
	for {
		if probe() {
			return nil
		}
		if !it.clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", timeoutErr, limit)
		}
		it.clock.Sleep(conditionPollInterval)
	}
}
