// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package episodedb

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/droidenv/droidenv/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id   TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL,
	started_at_us INTEGER NOT NULL,
	steps        INTEGER NOT NULL,
	total_reward REAL NOT NULL,
	terminated   INTEGER NOT NULL,
	trace_path   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS episodes_by_task ON episodes (task_id, started_at_us);
`

// Episode is one finished episode's record.
type Episode struct {
	// EpisodeID is unique per episode; the trace recorder's episode
	// identifier when tracing is on.
	EpisodeID string

	TaskID        string
	StartedAtUnix int64
	Steps         int
	TotalReward   float64

	// Terminated distinguishes a task-declared ending from a
	// truncation.
	Terminated bool

	// TracePath is the trace file on disk, empty when tracing was off.
	TracePath string
}

// TaskSummary aggregates every recorded episode of one task.
type TaskSummary struct {
	TaskID     string
	Episodes   int
	TotalSteps int64
	MeanReward float64
	Terminated int
}

// Store persists episodes. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open creates or opens the episode database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("episodedb: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// RecordEpisode inserts one finished episode.
func (s *Store) RecordEpisode(ctx context.Context, episode Episode) error {
	if episode.EpisodeID == "" {
		return fmt.Errorf("episodedb: EpisodeID is required")
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO episodes
			(episode_id, task_id, started_at_us, steps, total_reward, terminated, trace_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				episode.EpisodeID,
				episode.TaskID,
				episode.StartedAtUnix,
				episode.Steps,
				episode.TotalReward,
				boolToInt(episode.Terminated),
				episode.TracePath,
			},
		})
	if err != nil {
		return fmt.Errorf("episodedb: inserting episode %s: %w", episode.EpisodeID, err)
	}
	s.logger.Debug("episode recorded",
		"episode_id", episode.EpisodeID,
		"steps", episode.Steps,
		"total_reward", episode.TotalReward)
	return nil
}

// Episodes returns every episode of one task, oldest first.
func (s *Store) Episodes(ctx context.Context, taskID string) ([]Episode, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var episodes []Episode
	err = sqlitex.Execute(conn, `
		SELECT episode_id, task_id, started_at_us, steps, total_reward, terminated, trace_path
		FROM episodes WHERE task_id = ? ORDER BY started_at_us`,
		&sqlitex.ExecOptions{
			Args: []any{taskID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				episodes = append(episodes, Episode{
					EpisodeID:     stmt.ColumnText(0),
					TaskID:        stmt.ColumnText(1),
					StartedAtUnix: stmt.ColumnInt64(2),
					Steps:         stmt.ColumnInt(3),
					TotalReward:   stmt.ColumnFloat(4),
					Terminated:    stmt.ColumnInt(5) != 0,
					TracePath:     stmt.ColumnText(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("episodedb: listing episodes for %s: %w", taskID, err)
	}
	return episodes, nil
}

// Summarize aggregates one task's episodes.
func (s *Store) Summarize(ctx context.Context, taskID string) (TaskSummary, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return TaskSummary{}, err
	}
	defer s.pool.Put(conn)

	summary := TaskSummary{TaskID: taskID}
	err = sqlitex.Execute(conn, `
		SELECT COUNT(*), COALESCE(SUM(steps), 0), COALESCE(AVG(total_reward), 0),
			COALESCE(SUM(terminated), 0)
		FROM episodes WHERE task_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{taskID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summary.Episodes = stmt.ColumnInt(0)
				summary.TotalSteps = stmt.ColumnInt64(1)
				summary.MeanReward = stmt.ColumnFloat(2)
				summary.Terminated = stmt.ColumnInt(3)
				return nil
			},
		})
	if err != nil {
		return TaskSummary{}, fmt.Errorf("episodedb: summarizing %s: %w", taskID, err)
	}
	return summary, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
