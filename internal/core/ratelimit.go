package core

// ratelimit.go implements a process-local fixed-window request counter.
//
// Each key owns one window. The first call in a window opens it with a count
// of one. Calls inside the window increment the count until the limit is
// reached, after which they are denied without incrementing. A call made more
// than one window length after the window opened starts a fresh window.
//
// Keys are never evicted.

import (
	"sync"
	"time"
)

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter is a concurrency-safe fixed-window limiter. Create one per
// process and share it between handlers.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewRateLimiter creates an empty limiter using the wall clock.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithClock(time.Now)
}

// NewRateLimiterWithClock creates a limiter reading time from now.
func NewRateLimiterWithClock(now func() time.Time) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		now:     now,
	}
}

// Allow records a call for key and reports whether it is within limit calls
// per window.
func (l *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		l.windows[key] = &rateWindow{start: now, count: 1}
		return true
	}

	if now.Sub(w.start) > window {
		w.start = now
		w.count = 1
		return true
	}

	if w.count+1 > limit {
		return false
	}

	w.count++
	return true
}

// Count returns the number of allowed calls in key's current window.
func (l *RateLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.windows[key]; ok {
		return w.count
	}
	return 0
}

// Len returns the number of tracked keys.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
