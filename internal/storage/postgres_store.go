package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seen_posts (
  id TEXT PRIMARY KEY,
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_posts_expires_at ON seen_posts(expires_at);
`

// postgresStore implements a Store backed by a shared Postgres database, so
// several watcher instances can agree on what was already published.
type postgresStore struct {
	pool    *pgxpool.Pool
	cleanup *cleanupGate
	ttl     time.Duration
}

func openPostgres(ctx context.Context, dsn string, opts Options) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &postgresStore{
		pool:    pool,
		cleanup: newCleanupGate(opts.CleanupInterval, time.Now()),
		ttl:     opts.TTL,
	}, nil
}

func (p *postgresStore) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

func (p *postgresStore) Seen(ctx context.Context, id string) (bool, error) {
	if p == nil || p.pool == nil {
		return false, nil
	}

	now := time.Now()
	if err := p.cleanup.maybeRun(now, func(t time.Time) error { return p.purgeExpired(ctx, t) }); err != nil {
		return false, err
	}

	var expiresAt time.Time
	err := p.pool.QueryRow(ctx, `SELECT expires_at FROM seen_posts WHERE id = $1`, id).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen post: %w", err)
	}

	if !expiresAt.After(now) {
		if _, err := p.pool.Exec(ctx, `DELETE FROM seen_posts WHERE id = $1`, id); err != nil {
			return false, fmt.Errorf("delete expired post: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (p *postgresStore) Mark(ctx context.Context, id string) error {
	if p == nil || p.pool == nil {
		return nil
	}

	now := time.Now()
	if err := p.cleanup.maybeRun(now, func(t time.Time) error { return p.purgeExpired(ctx, t) }); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx, `
INSERT INTO seen_posts (id, expires_at) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		id, now.Add(p.ttl))
	if err != nil {
		return fmt.Errorf("mark post: %w", err)
	}
	return nil
}

func (p *postgresStore) purgeExpired(ctx context.Context, now time.Time) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM seen_posts WHERE expires_at <= $1`, now); err != nil {
		return fmt.Errorf("purge expired posts: %w", err)
	}
	return nil
}
