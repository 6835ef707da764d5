// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"regexp"
	"strconv"

	"github.com/droidenv/droidenv/logcat"
)

// RuleKind selects the aggregator operation a matching line triggers.
type RuleKind int

const (
	// RuleReward sums the line's first capture group, a numeric
	// literal, into the pending reward.
	RuleReward RuleKind = iota

	// RuleRewardEvent adds the rule's fixed Reward whenever the
	// pattern fires, for apps that log named events without values.
	RuleRewardEvent

	// RuleScore tracks the first capture group as a cumulative score
	// and rewards the delta between consecutive readings.
	RuleScore

	// RuleExtra records a task extra. The pattern must define a
	// "name" group and may define an "extra" payload group parsed by
	// the restricted literal grammar; a missing payload records the
	// presence-only value 1.
	RuleExtra

	// RuleJSONExtra merges the "json_extra" group, one JSON object,
	// into the extras store key by key.
	RuleJSONExtra

	// RuleEpisodeEnd latches the episode-end flag.
	RuleEpisodeEnd
)

// Rule is one declarative log-parsing rule: a pattern tagged with the
// aggregator operation it drives. Reward is only meaningful for
// RuleRewardEvent.
type Rule struct {
	Kind    RuleKind
	Pattern *regexp.Regexp
	Reward  float64
}

// NeverMatch is the pattern used for absent rule categories: "a" after
// line start matches no string by definition, keeping dispatch uniform
// without nil handlers.
var NeverMatch = regexp.MustCompile(`a^`)

// Listeners compiles rules into router listeners dispatching into the
// aggregator. Handlers run on the router goroutine; every mutation
// goes through the aggregator's mutex.
func (a *Aggregator) Listeners(rules []Rule) []logcat.EventListener {
	listeners := make([]logcat.EventListener, 0, len(rules))
	for _, rule := range rules {
		rule := rule
		listeners = append(listeners, logcat.EventListener{
			Pattern: rule.Pattern,
			Handle: func(pattern *regexp.Regexp, match []string) {
				a.apply(rule, pattern, match)
			},
		})
	}
	return listeners
}

// apply performs one rule's aggregator operation for one match.
func (a *Aggregator) apply(rule Rule, pattern *regexp.Regexp, match []string) {
	switch rule.Kind {
	case RuleReward:
		value, ok := a.matchedFloat(match)
		if !ok {
			return
		}
		a.AddReward(value)

	case RuleRewardEvent:
		a.AddReward(rule.Reward)

	case RuleScore:
		value, ok := a.matchedFloat(match)
		if !ok {
			return
		}
		a.ObserveScore(value)

	case RuleExtra:
		nameIndex := pattern.SubexpIndex("name")
		if nameIndex < 0 || nameIndex >= len(match) {
			a.logger.Warn("extra rule pattern lacks a name group", "pattern", pattern.String())
			return
		}
		name := match[nameIndex]

		payload := ""
		if extraIndex := pattern.SubexpIndex("extra"); extraIndex >= 0 && extraIndex < len(match) {
			payload = match[extraIndex]
		}
		if payload == "" {
			// Presence-only boolean extra.
			a.RecordExtra(name, 1.0)
			return
		}
		value, err := ParseLiteral(payload)
		if err != nil {
			a.logger.Warn("dropping malformed extra payload",
				"name", name, "payload", payload, "error", err)
			return
		}
		a.RecordExtra(name, value)

	case RuleJSONExtra:
		jsonIndex := pattern.SubexpIndex("json_extra")
		if jsonIndex < 0 || jsonIndex >= len(match) {
			a.logger.Warn("json extra rule pattern lacks a json_extra group", "pattern", pattern.String())
			return
		}
		a.MergeJSONExtras(match[jsonIndex])

	case RuleEpisodeEnd:
		a.MarkEpisodeEnded()
	}
}

// matchedFloat parses capture group 1 as a float, warning and dropping
// on malformed values.
func (a *Aggregator) matchedFloat(match []string) (float64, bool) {
	if len(match) < 2 {
		a.logger.Warn("numeric rule pattern has no capture group")
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		a.logger.Warn("dropping non-numeric telemetry value", "value", match[1], "error", err)
		return 0, false
	}
	return value, true
}
