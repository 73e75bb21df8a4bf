package pubindex

import (
	"testing"
	"time"
)

func TestRebuildLimiterBlocksAfterMax(t *testing.T) {
	limiter := NewRebuildLimiter(2, 200*time.Millisecond)
	defer limiter.Stop()

	if !limiter.Allow("blog1") {
		t.Fatalf("expected first rebuild to be allowed")
	}
	if !limiter.Allow("blog1") {
		t.Fatalf("expected second rebuild to be allowed")
	}
	if limiter.Allow("blog1") {
		t.Fatalf("expected third rebuild to be blocked")
	}
}

func TestRebuildLimiterResetsAfterWindow(t *testing.T) {
	limiter := NewRebuildLimiter(1, 150*time.Millisecond)
	defer limiter.Stop()

	if !limiter.Allow("blog1") {
		t.Fatalf("expected first rebuild to be allowed")
	}
	if limiter.Allow("blog1") {
		t.Fatalf("expected second rebuild to be blocked")
	}

	time.Sleep(200 * time.Millisecond)
	if !limiter.Allow("blog1") {
		t.Fatalf("expected rebuild after window to be allowed")
	}
}

func TestRebuildLimiterIsPerBlog(t *testing.T) {
	limiter := NewRebuildLimiter(1, 200*time.Millisecond)
	defer limiter.Stop()

	if !limiter.Allow("blog1") {
		t.Fatalf("expected first blog to be allowed")
	}
	if !limiter.Allow("blog2") {
		t.Fatalf("expected second blog to be allowed independently")
	}
	if limiter.Allow("blog1") {
		t.Fatalf("expected first blog to be blocked after max")
	}
}

func TestRebuildLimiterStopIsIdempotent(t *testing.T) {
	limiter := NewRebuildLimiter(1, time.Second)
	limiter.Stop()
	limiter.Stop()
}
