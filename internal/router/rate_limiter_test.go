package router

import (
	"sync"
	"testing"
	"time"

	"lecturehall/pkg/types"
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

func newTestLimiter(limit int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, time.Minute)
	rl.now = clock.Now
	return rl, clock
}

// TestRateLimiter_ExactLimits tests boundary conditions
func TestRateLimiter_ExactLimits(t *testing.T) {
	rl, _ := newTestLimiter(100)

	for i := 0; i < 100; i++ {
		if !rl.Allow("user1") {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	if rl.Allow("user1") {
		t.Error("message 101 should be rejected")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl, clock := newTestLimiter(2)

	rl.Allow("user1")
	rl.Allow("user1")
	if rl.Allow("user1") {
		t.Fatal("third message in window should be rejected")
	}

	clock.Advance(59 * time.Second)
	if rl.Allow("user1") {
		t.Error("window must not reset early")
	}

	clock.Advance(time.Second)
	if !rl.Allow("user1") {
		t.Error("expected a fresh window after one minute")
	}
}

func TestRateLimiter_MultipleUsers(t *testing.T) {
	rl, _ := newTestLimiter(1)

	if !rl.Allow("user1") || !rl.Allow("user2") {
		t.Fatal("each user has an independent budget")
	}
	if rl.Allow("user1") || rl.Allow("user2") {
		t.Error("second message for each user should be rejected")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, _ := newTestLimiter(0)
	for i := 0; i < 1000; i++ {
		if !rl.Allow("user1") {
			t.Fatalf("limiting disabled, message %d rejected", i)
		}
	}
	if rl.Tracked() != 0 {
		t.Error("disabled limiter should not track users")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(10)

	rl.Allow("stale")
	clock.Advance(4 * time.Minute)
	rl.Allow("fresh")
	clock.Advance(2 * time.Minute)

	rl.Cleanup()
	if rl.Tracked() != 1 {
		t.Fatalf("expected only the fresh user to remain, got %d", rl.Tracked())
	}
	if !rl.Allow("stale") {
		t.Error("cleaned user starts a new window")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl, _ := newTestLimiter(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if rl.Allow(types.UserID("shared")) {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}
