package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether another attempt for key is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// InProcessLimiter is a fixed-window limiter that tracks attempts per key in
// memory. It guards credential endpoints such as signin, keyed by client
// address.
type InProcessLimiter struct {
	perMinute int
	now       func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
	sweepAt  time.Time
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter allowing perMinute attempts per key
// and minute. perMinute <= 0 disables limiting.
func NewInProcessLimiter(perMinute int) *InProcessLimiter {
	return &InProcessLimiter{
		perMinute: perMinute,
		now:       time.Now,
		counters:  make(map[string]*counter),
	}
}

// Allow returns ErrTooManyRequests once key has used up its window.
func (l *InProcessLimiter) Allow(_ context.Context, key string) error {
	if l.perMinute <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > l.perMinute {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops expired windows at most once a minute so the map does not grow
// with every address ever seen. Must be called with mu held.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, k)
		}
	}
	l.sweepAt = now.Add(time.Minute)
}
