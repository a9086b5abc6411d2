package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultCapacity = 100
	DefaultWindow   = time.Hour
)

// Bucket is a process-wide token bucket refilled in full once per fixed window.
type Bucket struct {
	mu          sync.Mutex
	capacity    int
	window      time.Duration
	remaining   int
	windowStart time.Time
	now         func() time.Time
}

// Option customizes a Bucket.
type Option func(*Bucket)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

// Status is a point-in-time view of the bucket.
type Status struct {
	Remaining int       `json:"tokens_remaining"`
	Capacity  int       `json:"capacity"`
	ResetAt   time.Time `json:"reset_at"`
}

// New builds a full bucket. Non-positive arguments fall back to the defaults.
func New(capacity int, window time.Duration, opts ...Option) *Bucket {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	b := &Bucket{
		capacity:  capacity,
		window:    window,
		remaining: capacity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.now()
	return b
}

// TryConsume takes n tokens if at least n remain; otherwise it leaves the
// bucket untouched and returns false.
func (b *Bucket) TryConsume(n int) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.remaining < n {
		return false
	}
	b.remaining -= n
	return true
}

// Remaining returns the tokens left in the current window.
func (b *Bucket) Remaining() int {
	return b.Status().Remaining
}

// Capacity returns the configured bucket size.
func (b *Bucket) Capacity() int { return b.capacity }

// Status reports remaining tokens and when the window resets.
func (b *Bucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return Status{
		Remaining: b.remaining,
		Capacity:  b.capacity,
		ResetAt:   b.windowStart.Add(b.window),
	}
}

func (b *Bucket) refillLocked() {
	now := b.now()
	if now.Sub(b.windowStart) >= b.window {
		b.remaining = b.capacity
		b.windowStart = now
	}
}
