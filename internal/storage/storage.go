package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Package storage remembers which posts the watcher has already published.

// Store tracks published post keys with a retention TTL.
type Store interface {
	Close() error
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// Options selects a backend and controls retention characteristics.
type Options struct {
	Type            string
	Path            string
	DSN             string
	TTL             time.Duration
	CleanupInterval time.Duration
}

const (
	TypeNone     = "none"
	TypeBolt     = "bbolt"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"

	defaultTTL             = 5 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	typ := strings.TrimSpace(strings.ToLower(opts.Type))
	opts = normalizeOptions(opts)

	switch typ {
	case "", TypeNone, "disabled":
		return noopStore{}, nil
	case TypeBolt:
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.Path, opts)
	case TypeSQLite:
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		return openSQLite(ctx, opts.Path, opts)
	case TypePostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return openPostgres(ctx, opts.DSN, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                              { return nil }
func (noopStore) Seen(context.Context, string) (bool, error) { return false, nil }
func (noopStore) Mark(context.Context, string) error         { return nil }

// cleanupGate runs a purge at most once per interval across goroutines.
type cleanupGate struct {
	mu       sync.Mutex
	last     atomic.Int64
	interval time.Duration
}

func newCleanupGate(interval time.Duration, now time.Time) *cleanupGate {
	g := &cleanupGate{interval: interval}
	g.last.Store(now.Unix())
	return g
}

func (g *cleanupGate) due(now time.Time) bool {
	return now.Sub(time.Unix(g.last.Load(), 0)) >= g.interval
}

// maybeRun calls purge when the interval has elapsed since the last successful run.
func (g *cleanupGate) maybeRun(now time.Time, purge func(time.Time) error) error {
	if !g.due(now) {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.due(now) {
		return nil
	}
	if err := purge(now); err != nil {
		return err
	}
	g.last.Store(now.Unix())
	return nil
}
