package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_posts (
	id TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_posts_expires_at ON seen_posts(expires_at);
`

// sqliteStore implements a Store backed by a SQLite file.
type sqliteStore struct {
	conn    *sql.DB
	cleanup *cleanupGate
	ttl     time.Duration
}

func openSQLite(ctx context.Context, path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent Mark calls.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteStore{
		conn:    conn,
		cleanup: newCleanupGate(opts.CleanupInterval, time.Now()),
		ttl:     opts.TTL,
	}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *sqliteStore) Seen(ctx context.Context, id string) (bool, error) {
	if s == nil || s.conn == nil {
		return false, nil
	}

	now := time.Now()
	if err := s.cleanup.maybeRun(now, func(t time.Time) error { return s.purgeExpired(ctx, t) }); err != nil {
		return false, err
	}

	var expiresAt int64
	err := s.conn.QueryRowContext(ctx, `SELECT expires_at FROM seen_posts WHERE id = ?`, id).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen post: %w", err)
	}

	if expiresAt <= now.Unix() {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM seen_posts WHERE id = ?`, id); err != nil {
			return false, fmt.Errorf("delete expired post: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *sqliteStore) Mark(ctx context.Context, id string) error {
	if s == nil || s.conn == nil {
		return nil
	}

	now := time.Now()
	if err := s.cleanup.maybeRun(now, func(t time.Time) error { return s.purgeExpired(ctx, t) }); err != nil {
		return err
	}

	_, err := s.conn.ExecContext(ctx, `
INSERT INTO seen_posts (id, expires_at) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET expires_at = excluded.expires_at`,
		id, now.Add(s.ttl).Unix())
	if err != nil {
		return fmt.Errorf("mark post: %w", err)
	}
	return nil
}

func (s *sqliteStore) purgeExpired(ctx context.Context, now time.Time) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM seen_posts WHERE expires_at <= ?`, now.Unix()); err != nil {
		return fmt.Errorf("purge expired posts: %w", err)
	}
	return nil
}
