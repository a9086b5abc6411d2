package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBucketExhaustsAndRefillsAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(3, time.Hour, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		if !b.TryConsume(1) {
			t.Fatalf("consume %d should succeed", i)
		}
	}
	if b.TryConsume(1) {
		t.Fatalf("consume after exhaustion should fail")
	}
	if b.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", b.Remaining())
	}

	clock.Advance(59 * time.Minute)
	if b.TryConsume(1) {
		t.Fatalf("consume before window elapsed should fail")
	}

	clock.Advance(time.Minute)
	if got := b.Remaining(); got != 3 {
		t.Fatalf("remaining after refill = %d, want 3", got)
	}
	if !b.TryConsume(1) {
		t.Fatalf("consume after refill should succeed")
	}
	if got := b.Remaining(); got != 2 {
		t.Fatalf("remaining = %d, want 2", got)
	}
}

func TestBucketFailedConsumeLeavesStateUnchanged(t *testing.T) {
	b := New(2, time.Hour)
	if b.TryConsume(3) {
		t.Fatalf("consume more than capacity should fail")
	}
	if got := b.Remaining(); got != 2 {
		t.Fatalf("remaining = %d, want 2", got)
	}
}

func TestBucketStatusResetAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	b := New(10, 30*time.Minute, WithClock(clock.Now))
	st := b.Status()
	if st.Capacity != 10 || st.Remaining != 10 || !st.ResetAt.Equal(start.Add(30*time.Minute)) {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestBucketConcurrentConsumersNeverOverspend(t *testing.T) {
	b := New(100, time.Hour)
	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 250; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryConsume(1) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	if granted.Load() != 100 {
		t.Fatalf("granted %d tokens, want 100", granted.Load())
	}
	if b.Remaining() != 0 {
		t.Fatalf("remaining = %d", b.Remaining())
	}
}

func TestNewDefaults(t *testing.T) {
	b := New(0, 0)
	if b.Capacity() != DefaultCapacity {
		t.Fatalf("capacity = %d", b.Capacity())
	}
}
