package alert

import (
	"sync"
	"time"
)

type limitKey struct {
	subscriber string
	kind       Kind
}

type limitState struct {
	count       int
	windowStart time.Time
}

// RateLimiter enforces a maximum delivery rate per (subscriber, alert kind)
// with a rolling window counter. The counter resets once the window elapses.
type RateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	cap    int
	states map[limitKey]*limitState
}

// NewRateLimiter builds a limiter allowing cap deliveries per window.
func NewRateLimiter(window time.Duration, cap int) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if cap <= 0 {
		cap = 10
	}
	return &RateLimiter{
		window: window,
		cap:    cap,
		states: make(map[limitKey]*limitState),
	}
}

// Allow consumes one delivery slot if the subscriber is under its cap for
// this alert kind.
func (r *RateLimiter) Allow(subscriber string, kind Kind, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{subscriber: subscriber, kind: kind}
	state, ok := r.states[key]
	if !ok || now.Sub(state.windowStart) >= r.window {
		r.states[key] = &limitState{count: 1, windowStart: now}
		return true
	}

	if state.count >= r.cap {
		return false
	}
	state.count++
	return true
}

// NextReset reports how long until the subscriber's window for this kind
// rolls over. Zero means the window is already open.
func (r *RateLimiter) NextReset(subscriber string, kind Kind, now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[limitKey{subscriber: subscriber, kind: kind}]
	if !ok {
		return 0
	}
	remaining := r.window - now.Sub(state.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}
