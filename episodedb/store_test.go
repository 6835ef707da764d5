// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package episodedb

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "episodes.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestRecordAndListEpisodes(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	episodes := []Episode{
		{EpisodeID: "ep-1", TaskID: "dodge", StartedAtUnix: 100, Steps: 50, TotalReward: 3.5, Terminated: true},
		{EpisodeID: "ep-2", TaskID: "dodge", StartedAtUnix: 200, Steps: 80, TotalReward: 1, TracePath: "/traces/ep-2.trace"},
		{EpisodeID: "ep-3", TaskID: "other", StartedAtUnix: 150, Steps: 10, TotalReward: 0},
	}
	for _, episode := range episodes {
		if err := store.RecordEpisode(ctx, episode); err != nil {
			t.Fatalf("RecordEpisode(%s): %v", episode.EpisodeID, err)
		}
	}

	got, err := store.Episodes(ctx, "dodge")
	if err != nil {
		t.Fatalf("Episodes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d episodes, want 2", len(got))
	}
	if got[0].EpisodeID != "ep-1" || got[1].EpisodeID != "ep-2" {
		t.Errorf("order = %s, %s, want ep-1, ep-2 (oldest first)", got[0].EpisodeID, got[1].EpisodeID)
	}
	if !got[0].Terminated || got[0].TotalReward != 3.5 {
		t.Errorf("ep-1 = %+v, want terminated with reward 3.5", got[0])
	}
	if got[1].TracePath != "/traces/ep-2.trace" {
		t.Errorf("ep-2 trace path = %q", got[1].TracePath)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	for _, episode := range []Episode{
		{EpisodeID: "a", TaskID: "dodge", Steps: 10, TotalReward: 2, Terminated: true},
		{EpisodeID: "b", TaskID: "dodge", Steps: 30, TotalReward: 4},
	} {
		if err := store.RecordEpisode(ctx, episode); err != nil {
			t.Fatalf("RecordEpisode: %v", err)
		}
	}

	summary, err := store.Summarize(ctx, "dodge")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Episodes != 2 || summary.TotalSteps != 40 ||
		summary.MeanReward != 3 || summary.Terminated != 1 {
		t.Errorf("summary = %+v, want 2 episodes, 40 steps, mean 3, 1 terminated", summary)
	}
}

func TestSummarizeEmptyTask(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	summary, err := store.Summarize(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Episodes != 0 || summary.TotalSteps != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}

func TestRecordEpisodeRequiresID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	if err := store.RecordEpisode(context.Background(), Episode{TaskID: "t"}); err == nil {
		t.Fatal("RecordEpisode accepted an empty EpisodeID")
	}
}

func TestDuplicateEpisodeIDRejected(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	episode := Episode{EpisodeID: "dup", TaskID: "t"}
	if err := store.RecordEpisode(ctx, episode); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}
	if err := store.RecordEpisode(ctx, episode); err == nil {
		t.Fatal("RecordEpisode accepted a duplicate EpisodeID")
	}
}
