package pubindex

import (
	"sync"
	"time"
)

// RebuildLimiter rate-limits full index rebuilds per blog.
type RebuildLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	max    int
	window time.Duration
	done   chan struct{}
	once   sync.Once
}

// NewRebuildLimiter creates a RebuildLimiter that allows max rebuilds per
// blog per window. Stop releases its cleanup goroutine.
func NewRebuildLimiter(max int, window time.Duration) *RebuildLimiter {
	l := &RebuildLimiter{
		hits:   make(map[string][]time.Time),
		max:    max,
		window: window,
		done:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *RebuildLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.window)
		l.mu.Lock()
		for blog, hits := range l.hits {
			if kept := recent(hits, cutoff); len(kept) == 0 {
				delete(l.hits, blog)
			} else {
				l.hits[blog] = kept
			}
		}
		l.mu.Unlock()
	}
}

func recent(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Allow records a rebuild of blog and reports whether it is within the limit.
// Refused attempts are not recorded.
func (l *RebuildLimiter) Allow(blog string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := recent(l.hits[blog], now.Add(-l.window))
	if len(kept) >= l.max {
		l.hits[blog] = kept
		return false
	}
	l.hits[blog] = append(kept, now)
	return true
}

// Stop ends the cleanup goroutine.
func (l *RebuildLimiter) Stop() {
	l.once.Do(func() { close(l.done) })
}
