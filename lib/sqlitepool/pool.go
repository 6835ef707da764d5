// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a pool.
type Config struct {
	// Path is the database file, created if absent. ":memory:" gives
	// an in-memory database; use PoolSize 1 with it, since every
	// in-memory connection is independent.
	Path string

	// PoolSize is the number of connections. Zero means four. Episode
	// recording is write-light, so small pools are plenty.
	PoolSize int

	// Logger receives open/close messages. Nil discards them.
	Logger *slog.Logger

	// OnConnect runs once per connection after the standard pragmas,
	// for schema creation and extra pragmas.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size SQLite connection pool. The pool is safe for
// concurrent use; individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are initialized lazily on first
// Take. The caller must Close the pool when done.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is available or ctx is
// cancelled. Pair every Take with a Put:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a borrowed connection. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes all connections, blocking until borrowed ones return.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Debug("sqlite pool closed", "path", p.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}
	return nil
}
