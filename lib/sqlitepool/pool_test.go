// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/droidenv/droidenv/lib/sqlitepool"
)

func openTestPool(t *testing.T, onConnect func(*sqlite.Conn) error) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		PoolSize:  2,
		OnConnect: onConnect,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func TestPoolAppliesWALMode(t *testing.T) {
	t.Parallel()

	pool := openTestPool(t, nil)
	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}
}

func TestPoolOnConnectCreatesSchema(t *testing.T) {
	t.Parallel()

	pool := openTestPool(t, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			CREATE TABLE IF NOT EXISTS kv (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
		`, nil)
	})

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	err = sqlitex.Execute(conn, "INSERT INTO kv (key, value) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"k", "v"},
	})
	if err != nil {
		t.Fatalf("INSERT into OnConnect schema: %v", err)
	}
}

func TestPoolRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open accepted an empty path")
	}
}

func TestPoolTakeHonorsCancellation(t *testing.T) {
	t.Parallel()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take with a cancelled context succeeded")
	}

	pool.Put(conn)
}
