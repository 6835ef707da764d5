// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"log/slog"
	"time"

	"github.com/droidenv/droidenv/adb"
	"github.com/droidenv/droidenv/lib/clock"
	"github.com/droidenv/droidenv/pipeline"
)

// Verdict is one periodic foreground-activity finding.
type Verdict struct {
	// UserExited reports that the device left the expected activity,
	// either by observation or because activity extraction failed too
	// many times in a row.
	UserExited bool
}

// CheckerConfig holds the construction parameters for a
// PeriodicChecker.
type CheckerConfig struct {
	// Parser answers the foreground-activity probes.
	Parser adb.CallParser

	// ExpectedActivity is the full "package/activity" name. Empty
	// disables probing entirely.
	ExpectedActivity string

	// Interval is the probe cadence. Zero means one second.
	Interval time.Duration

	// MaxFailedExtractions is how many consecutive failed probes count
	// as a user exit. Zero means ten; negative disables the bound.
	MaxFailedExtractions int

	// Clock drives the cadence. Nil means the real clock.
	Clock clock.Clock

	// Logger receives checker findings. Nil discards them.
	Logger *slog.Logger
}

const (
	defaultCheckInterval        = time.Second
	defaultMaxFailedExtractions = 10
)

// PeriodicChecker probes the foreground activity on a fixed cadence
// from a background pipeline and queues a verdict whenever the device
// appears to have left the task. Findings accumulate until the next
// UserExited call drains them, so an exit observed between two steps
// is never lost.
type PeriodicChecker struct {
	parser               adb.CallParser
	expectedActivity     string
	maxFailedExtractions int
	logger               *slog.Logger

	ticker *clock.Ticker
	pipe   *pipeline.Pipeline[struct{}, Verdict]

	// failedExtractions is touched only by the pipeline goroutine.
	failedExtractions int
}

// StartPeriodicChecker launches the checker. Call Stop to terminate
// its goroutine.
func StartPeriodicChecker(cfg CheckerConfig) *PeriodicChecker {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	maxFailed := cfg.MaxFailedExtractions
	if maxFailed == 0 {
		maxFailed = defaultMaxFailedExtractions
	}

	c := &PeriodicChecker{
		parser:               cfg.Parser,
		expectedActivity:     cfg.ExpectedActivity,
		maxFailedExtractions: maxFailed,
		logger:               logger,
		ticker:               clk.NewTicker(interval),
	}
	c.pipe = pipeline.Start(pipeline.Config{
		Name:   "app-screen-checker",
		Logger: logger,
	}, c.iterate)
	return c
}

func (c *PeriodicChecker) iterate(p *pipeline.Pipeline[struct{}, Verdict]) {
	select {
	case <-c.ticker.C:
		c.probe(p)
	case <-p.Done():
	}
}

func (c *PeriodicChecker) probe(p *pipeline.Pipeline[struct{}, Verdict]) {
	if c.expectedActivity == "" {
		return
	}
	response := c.parser.Parse(adb.Request{GetActivity: &adb.GetActivityRequest{}})
	if response.Status != adb.StatusOK {
		c.failedExtractions++
		c.logger.Debug("activity extraction failed",
			"status", response.Status.String(), "consecutive", c.failedExtractions)
		if c.maxFailedExtractions > 0 && c.failedExtractions >= c.maxFailedExtractions {
			c.logger.Warn("too many failed activity extractions, treating as user exit",
				"consecutive", c.failedExtractions)
			c.failedExtractions = 0
			p.BodyWrite(Verdict{UserExited: true})
		}
		return
	}
	c.failedExtractions = 0

	if response.ActivityName != c.expectedActivity {
		c.logger.Info("foreground activity changed",
			"expected", c.expectedActivity, "actual", response.ActivityName)
		p.BodyWrite(Verdict{UserExited: true})
	}
}

// UserExited drains all queued verdicts and reports whether any of
// them observed an exit.
func (c *PeriodicChecker) UserExited() bool {
	exited := false
	for {
		verdict, ok := c.pipe.Read(false, 0)
		if !ok {
			return exited
		}
		if verdict.UserExited {
			exited = true
		}
	}
}

// Stop terminates the checker goroutine and releases its ticker.
// Blocks until the goroutine has exited.
func (c *PeriodicChecker) Stop() {
	c.pipe.Kill()
	c.ticker.Stop()
	<-c.pipe.Finished()
}
