// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

// droidenv-run drives a random agent through episodes on the fake
// in-memory simulator. It exercises the full environment stack
// end-to-end without a device: task declaration, launch and health
// handling, log-derived rewards, optional trace recording, and
// optional episode persistence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/droidenv/droidenv/coordinator"
	"github.com/droidenv/droidenv/env"
	"github.com/droidenv/droidenv/episodedb"
	"github.com/droidenv/droidenv/rl"
	"github.com/droidenv/droidenv/simulator"
	"github.com/droidenv/droidenv/task"
	"github.com/droidenv/droidenv/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("droidenv-run", pflag.ContinueOnError)
	taskPath := flagSet.String("task", "", "task YAML declaration (default: a built-in demo task)")
	episodes := flagSet.Int("episodes", 3, "number of episodes to run")
	maxSteps := flagSet.Int("max-steps", 200, "safety bound on steps per episode")
	traceDir := flagSet.String("trace-dir", "", "write one trace file per episode into this directory")
	episodeDB := flagSet.String("episode-db", "", "record episode results into this SQLite database")
	logLevel := flagSet.String("log-level", "info", "log level: debug, info, warn, error")
	seed := flagSet.Int64("seed", 1, "random agent seed")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("bad --log-level %q: %w", *logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskConfig := demoTask()
	if *taskPath != "" {
		loaded, err := task.Load(*taskPath)
		if err != nil {
			return err
		}
		taskConfig = loaded
	}

	manager, err := task.NewManager(task.ManagerConfig{Task: taskConfig, Logger: logger})
	if err != nil {
		return err
	}
	sim := simulator.NewFake(simulator.FakeConfig{
		Activity:          taskConfig.ExpectedActivity,
		HeartbeatOnAction: true,
		RewardEvery:       5,
	})
	coord, err := coordinator.New(coordinator.Config{
		Simulator: sim,
		Task:      manager,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	environment := env.New(coord, logger)
	defer environment.Close()

	var store *episodedb.Store
	if *episodeDB != "" {
		store, err = episodedb.Open(*episodeDB, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	rng := rand.New(rand.NewSource(*seed))
	for episode := 1; episode <= *episodes; episode++ {
		if err := ctx.Err(); err != nil {
			logger.Info("interrupted", "episodes_finished", episode-1)
			break
		}
		if err := runEpisode(ctx, environment, taskConfig, store, rng,
			episode, *maxSteps, *traceDir, logger); err != nil {
			return err
		}
	}

	if store != nil {
		summary, err := store.Summarize(ctx, taskConfig.ID)
		if err != nil {
			return err
		}
		logger.Info("run summary",
			"task", summary.TaskID,
			"episodes", summary.Episodes,
			"total_steps", summary.TotalSteps,
			"mean_reward", summary.MeanReward,
			"terminated", summary.Terminated)
	}
	return nil
}

func runEpisode(
	ctx context.Context,
	environment *env.Environment,
	taskConfig task.Config,
	store *episodedb.Store,
	rng *rand.Rand,
	episode, maxSteps int,
	traceDir string,
	logger *slog.Logger,
) error {
	started := time.Now()
	ts, err := environment.Reset(ctx)
	if err != nil {
		return err
	}

	episodeID := uuid.NewString()
	var recorder *trace.Recorder
	var traceFile *os.File
	tracePath := ""
	if traceDir != "" {
		if err := os.MkdirAll(traceDir, 0o755); err != nil {
			return err
		}
		tracePath = filepath.Join(traceDir, fmt.Sprintf("episode-%04d.trace", episode))
		traceFile, err = os.Create(tracePath)
		if err != nil {
			return err
		}
		defer traceFile.Close()
		recorder, err = trace.NewRecorder(traceFile, taskConfig.ID, started)
		if err != nil {
			return err
		}
		defer recorder.Close()
		episodeID = recorder.EpisodeID()
	}

	record := func(ts rl.TimeStep) error {
		if recorder == nil {
			return nil
		}
		return recorder.Record(ts)
	}
	if err := record(ts); err != nil {
		return err
	}

	totalReward := 0.0
	steps := 0
	for !ts.Last() && steps < maxSteps && ctx.Err() == nil {
		ts, err = environment.Step(ctx, randomAction(rng))
		if err != nil {
			return err
		}
		totalReward += ts.Reward
		steps++
		if err := record(ts); err != nil {
			return err
		}
	}

	terminated := ts.Last() && ts.Discount == 0
	logger.Info("episode finished",
		"episode", episode,
		"steps", steps,
		"total_reward", totalReward,
		"terminated", terminated,
		"elapsed", time.Since(started).Round(time.Millisecond))

	if store != nil {
		return store.RecordEpisode(ctx, episodedb.Episode{
			EpisodeID:     episodeID,
			TaskID:        taskConfig.ID,
			StartedAtUnix: started.UnixMicro(),
			Steps:         steps,
			TotalReward:   totalReward,
			Terminated:    terminated,
			TracePath:     tracePath,
		})
	}
	return nil
}

// randomAction is the whole agent: mostly touches at uniform
// positions, with occasional lifts and no-ops.
func randomAction(rng *rand.Rand) rl.Action {
	switch rng.Intn(10) {
	case 0:
		return rl.Action{Type: rl.ActionRepeat}
	case 1, 2:
		return rl.Action{
			Type:          rl.ActionLift,
			TouchPosition: rl.Position{X: rng.Float64(), Y: rng.Float64()},
		}
	default:
		return rl.Action{
			Type:          rl.ActionTouch,
			TouchPosition: rl.Position{X: rng.Float64(), Y: rng.Float64()},
		}
	}
}

// demoTask is the built-in declaration used when no --task file is
// given. It matches the fake simulator's reward lines.
func demoTask() task.Config {
	return task.Config{
		ID:               "fake-demo",
		MaxEpisodeSteps:  100,
		ExpectedActivity: "com.example.droidenv/.DemoActivity",
		LogParsing: task.LogParsingConfig{
			Regexps: task.LogRegexps{
				Reward: []string{`^reward: ([-+]?[0-9]*\.?[0-9]+)$`},
			},
		},
	}
}
