// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/droidenv/droidenv/telemetry"
)

// Duration is a time.Duration that unmarshals from YAML strings in
// time.ParseDuration syntax, such as "500ms" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is one task declaration, loaded from YAML.
type Config struct {
	// ID names the task in logs and episode records.
	ID string `yaml:"id"`

	// MaxEpisodeSteps truncates an episode once the step count
	// exceeds this limit: step N is still a normal transition, step
	// N+1 is LAST. Zero disables the limit.
	MaxEpisodeSteps int `yaml:"max_episode_steps"`

	// MaxEpisodeDuration truncates an episode after this much wall
	// clock. Zero disables the limit.
	MaxEpisodeDuration Duration `yaml:"max_episode_duration"`

	// ExpectedActivity is the full "package/activity" name the agent
	// must remain in. Empty disables the foreground check.
	ExpectedActivity string `yaml:"expected_activity"`

	// ExtrasBufferSize bounds the per-key extras FIFO. Zero means the
	// aggregator default.
	ExtrasBufferSize int `yaml:"extras_buffer_size"`

	// LogParsing declares how app log lines become telemetry.
	LogParsing LogParsingConfig `yaml:"log_parsing"`

	// SetupSteps run once when the task is installed on a freshly
	// launched device.
	SetupSteps []Step `yaml:"setup_steps"`

	// ResetSteps run before every episode.
	ResetSteps []Step `yaml:"reset_steps"`
}

// LogParsingConfig selects which device log lines the task cares about
// and what each kind of match means.
type LogParsingConfig struct {
	// Filters are logcat filterspecs ("MyTag:V") applied by the device
	// driver when it opens the log stream.
	Filters []string `yaml:"filters"`

	Regexps LogRegexps `yaml:"regexps"`
}

// LogRegexps holds one regular expression set per telemetry category.
// An absent category is compiled to a never-matching pattern so that
// dispatch stays uniform.
type LogRegexps struct {
	// Reward patterns capture a numeric reward in group 1.
	Reward []string `yaml:"reward"`

	// RewardEvent patterns award a fixed reward per match.
	RewardEvent []RewardEventRegexp `yaml:"reward_event"`

	// Score captures a cumulative score in group 1; the reward is the
	// delta between consecutive readings.
	Score string `yaml:"score"`

	// EpisodeEnd patterns latch the episode-end flag.
	EpisodeEnd []string `yaml:"episode_end"`

	// Extra patterns must define a "name" group and may define an
	// "extra" payload group.
	Extra []string `yaml:"extra"`

	// JSONExtra patterns must define a "json_extra" group holding one
	// JSON object.
	JSONExtra []string `yaml:"json_extra"`
}

// RewardEventRegexp pairs an event pattern with the fixed reward it
// grants.
type RewardEventRegexp struct {
	Event  string  `yaml:"event"`
	Reward float64 `yaml:"reward"`
}

// Load reads and validates a task declaration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading task config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a task declaration. Unknown YAML fields
// are rejected so typos fail loudly instead of silently disabling a
// rule.
func Parse(data []byte) (Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints and compiles every regular
// expression once so malformed patterns surface at load time.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("task config: id is required")
	}
	if c.MaxEpisodeSteps < 0 {
		return fmt.Errorf("task config: max_episode_steps %d is negative", c.MaxEpisodeSteps)
	}
	if c.MaxEpisodeDuration < 0 {
		return fmt.Errorf("task config: max_episode_duration %s is negative", c.MaxEpisodeDuration.Std())
	}
	if c.ExtrasBufferSize < 0 {
		return fmt.Errorf("task config: extras_buffer_size %d is negative", c.ExtrasBufferSize)
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	for i, step := range c.SetupSteps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("task config: setup step %d: %w", i+1, err)
		}
	}
	for i, step := range c.ResetSteps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("task config: reset step %d: %w", i+1, err)
		}
	}
	return nil
}

// Rules compiles the log-parsing declaration into telemetry rules.
func (c *Config) Rules() ([]telemetry.Rule, error) {
	regexps := c.LogParsing.Regexps
	var rules []telemetry.Rule

	appendRules := func(kind telemetry.RuleKind, exprs []string) error {
		if len(exprs) == 0 {
			rules = append(rules, telemetry.Rule{Kind: kind, Pattern: telemetry.NeverMatch})
			return nil
		}
		for _, expr := range exprs {
			pattern, err := compileRule(expr)
			if err != nil {
				return err
			}
			rules = append(rules, telemetry.Rule{Kind: kind, Pattern: pattern})
		}
		return nil
	}

	if err := appendRules(telemetry.RuleReward, regexps.Reward); err != nil {
		return nil, err
	}
	for _, event := range regexps.RewardEvent {
		pattern, err := compileRule(event.Event)
		if err != nil {
			return nil, err
		}
		rules = append(rules, telemetry.Rule{
			Kind:    telemetry.RuleRewardEvent,
			Pattern: pattern,
			Reward:  event.Reward,
		})
	}
	if err := appendRules(telemetry.RuleScore, singleton(regexps.Score)); err != nil {
		return nil, err
	}
	if err := appendRules(telemetry.RuleEpisodeEnd, regexps.EpisodeEnd); err != nil {
		return nil, err
	}
	if err := appendRules(telemetry.RuleExtra, regexps.Extra); err != nil {
		return nil, err
	}
	if err := appendRules(telemetry.RuleJSONExtra, regexps.JSONExtra); err != nil {
		return nil, err
	}
	return rules, nil
}

func singleton(expr string) []string {
	if expr == "" {
		return nil
	}
	return []string{expr}
}

// compileRule compiles one declared pattern, mapping the empty string
// to the never-matching pattern.
func compileRule(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return telemetry.NeverMatch, nil
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("task config: bad log regexp %q: %w", expr, err)
	}
	return pattern, nil
}
