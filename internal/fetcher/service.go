package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/cache"
	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/internal/logger"
	"github.com/samvad-hq/samvad-post-fetcher/internal/ratelimit"
)

// Runner executes one provider job for a handle.
type Runner interface {
	Run(ctx context.Context, handle string, limit int) ([]domain.Post, error)
}

// ServiceOptions configures request validation and caching.
type ServiceOptions struct {
	CacheTTL     time.Duration
	MaxHandleLen int
	MaxLimit     int
}

const (
	defaultCacheTTL     = time.Hour
	defaultMaxHandleLen = 30
	defaultMaxLimit     = 50
)

// Result is the outcome of a fetch, including whether it was served from cache.
type Result struct {
	Handle string
	Posts  []domain.Post
	Cached bool
}

// Service is the entry point for fetching posts: validation, cache, rate
// limiting and orchestration in that order.
type Service struct {
	orch    Runner
	cache   *cache.Cache
	limiter *ratelimit.Bucket
	log     logger.Logger
	opts    ServiceOptions
}

// NewService builds a fetch service. Nil cache or limiter get defaults.
func NewService(orch Runner, c *cache.Cache, limiter *ratelimit.Bucket, log logger.Logger, opts ServiceOptions) *Service {
	if c == nil {
		c = cache.New()
	}
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.MaxHandleLen <= 0 {
		opts.MaxHandleLen = defaultMaxHandleLen
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = defaultMaxLimit
	}
	return &Service{
		orch:    orch,
		cache:   c,
		limiter: limiter,
		log:     logger.Ensure(log),
		opts:    opts,
	}
}

// FetchPosts returns up to limit normalized posts for handle.
func (s *Service) FetchPosts(ctx context.Context, handle string, limit int) ([]domain.Post, error) {
	res, err := s.Fetch(ctx, handle, limit)
	if err != nil {
		return nil, err
	}
	return res.Posts, nil
}

// Fetch is FetchPosts with cache provenance.
func (s *Service) Fetch(ctx context.Context, handle string, limit int) (Result, error) {
	if s == nil {
		return Result{}, domain.ProviderError("fetch service is not initialized", nil)
	}

	h, err := NormalizeHandle(handle, s.opts.MaxHandleLen)
	if err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		return Result{}, domain.Validation("limit must be a positive integer, got %d", limit)
	}
	if limit > s.opts.MaxLimit {
		return Result{}, domain.Validation("limit must not exceed %d, got %d", s.opts.MaxLimit, limit)
	}
	if s.orch == nil {
		return Result{}, domain.ProviderError("fetch service has no provider", nil)
	}

	key := cache.Key(h, limit)
	if cached, ok := s.cache.Get(key); ok {
		s.log.DebugObj("cache hit", "fetch", map[string]any{"key": key, "posts": len(cached)})
		return Result{Handle: h, Posts: cached, Cached: true}, nil
	}

	if !s.limiter.TryConsume(1) {
		st := s.limiter.Status()
		s.log.WarnObj("rate limit exceeded", "fetch", map[string]any{
			"handle":   h,
			"reset_at": st.ResetAt,
		})
		return Result{}, domain.RateLimited(fmt.Sprintf("rate limit of %d requests exceeded, resets at %s",
			st.Capacity, st.ResetAt.UTC().Format(time.RFC3339)))
	}

	started := time.Now()
	out, err := s.orch.Run(ctx, h, limit)
	if err != nil {
		err = classify(err, "fetch")
		s.log.ErrorObj("fetch failed", "fetch", map[string]any{
			"handle": h,
			"limit":  limit,
			"kind":   domain.KindOf(err),
			"error":  err.Error(),
		})
		return Result{}, err
	}
	if out == nil {
		out = []domain.Post{}
	}

	stored := s.cache.Set(key, out, s.opts.CacheTTL)
	s.log.InfoObj("fetch completed", "fetch", map[string]any{
		"handle":      h,
		"limit":       limit,
		"posts":       len(out),
		"cached":      stored,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return Result{Handle: h, Posts: out}, nil
}

// InvalidateCache drops cached results for handle, or everything when handle is blank.
func (s *Service) InvalidateCache(handle string) (int, error) {
	if s == nil {
		return 0, errors.New("fetch service is not initialized")
	}
	if strings.TrimSpace(handle) == "" {
		return s.cache.InvalidateAll(), nil
	}
	h, err := NormalizeHandle(handle, s.opts.MaxHandleLen)
	if err != nil {
		return 0, err
	}
	return s.cache.Invalidate(h), nil
}

// RateLimiterStatus reports the shared limiter's state.
func (s *Service) RateLimiterStatus() ratelimit.Status {
	if s == nil {
		return ratelimit.Status{}
	}
	return s.limiter.Status()
}

// NormalizeHandle trims, strips a leading "@" and lower-cases handle, then
// checks its length and charset.
func NormalizeHandle(handle string, maxLen int) (string, error) {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if h == "" {
		return "", domain.Validation("handle is required")
	}
	if maxLen > 0 && len(h) > maxLen {
		return "", domain.Validation("handle must be at most %d characters", maxLen)
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
		default:
			return "", domain.Validation("handle %q contains invalid character %q", h, r)
		}
	}
	return h, nil
}
