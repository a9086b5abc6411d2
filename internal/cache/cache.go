package cache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

// KeyPrefix namespaces cache keys by platform.
const KeyPrefix = "instagram"

// Key composes the cache key for a normalized handle and limit.
func Key(handle string, limit int) string {
	return KeyPrefix + ":" + handle + ":" + strconv.Itoa(limit)
}

type entry struct {
	posts     []domain.Post
	expiresAt time.Time
}

// Cache holds fetched post lists keyed by handle and limit, expiring lazily.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached posts for key when present and unexpired.
func (c *Cache) Get(key string) ([]domain.Post, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return clonePosts(e.posts), true
}

// Set stores posts for ttl. Empty post lists and non-positive ttls are not
// stored; the return value reports whether an entry was written.
func (c *Cache) Set(key string, posts []domain.Post, ttl time.Duration) bool {
	if len(posts) == 0 || ttl <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		posts:     clonePosts(posts),
		expiresAt: c.now().Add(ttl),
	}
	return true
}

// Invalidate removes every entry derived from handle and returns how many were removed.
func (c *Cache) Invalidate(handle string) int {
	prefix := KeyPrefix + ":" + handle + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]entry)
	return removed
}

// PurgeExpired drops expired entries eagerly.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, expired ones included until purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func clonePosts(in []domain.Post) []domain.Post {
	out := make([]domain.Post, len(in))
	for i, p := range in {
		p.Hashtags = append([]string(nil), p.Hashtags...)
		if p.Hashtags == nil {
			p.Hashtags = []string{}
		}
		out[i] = p
	}
	return out
}
