package admin

import (
	"testing"
	"time"
)

func TestSlidingWindowLimiterEnforcesLimit(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	clock := &movableTestClock{t: now}
	limiter := NewSlidingWindowLimiter(time.Minute, 2, clock.Now)

	if !limiter.Allow() {
		t.Fatalf("expected first request allowed")
	}
	if !limiter.Allow() {
		t.Fatalf("expected second request allowed")
	}
	if limiter.Allow() {
		t.Fatalf("expected third request within window to be denied")
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if !limiter.Allow() {
		t.Fatalf("expected request allowed once window has rolled over")
	}
}

type movableTestClock struct{ t time.Time }

func (c *movableTestClock) Now() time.Time { return c.t }
