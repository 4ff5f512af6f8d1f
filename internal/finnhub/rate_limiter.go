package finnhub

import (
	"context"
	"sync"
	"time"
)

// Default request budget, kept strictly under the vendor's 60/min cap
const (
	DefaultRateLimit  = 58
	DefaultRateWindow = 60 * time.Second
)

// RateLimiter enforces a hard cap of limit requests in any rolling window.
// Acquire blocks until a slot frees up or the context is canceled; blocked
// callers are admitted in arrival order.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time

	// queue admits one blocked acquirer at a time; further callers park
	// on the send and are serviced FIFO
	queue chan struct{}
}

// NewRateLimiter creates a rate limiter for the given budget
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		queue:  make(chan struct{}, 1),
	}
}

// TryAcquire records a request slot if one is available in the current window
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.prune(now)

	if len(r.stamps) >= r.limit {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}

// Acquire blocks until a request slot is available or ctx is done.
// Callers that have to wait are served in the order they arrived.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case r.queue <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.queue }()

	for {
		if r.TryAcquire() {
			return nil
		}

		wait := r.nextSlotIn()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Status returns the used and remaining slots in the current window
func (r *RateLimiter) Status() (used, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	used = len(r.stamps)
	remaining = r.limit - used
	return used, remaining
}

// nextSlotIn returns how long until the oldest in-window request expires
func (r *RateLimiter) nextSlotIn() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.prune(now)

	if len(r.stamps) < r.limit {
		return time.Millisecond
	}
	wait := r.stamps[0].Add(r.window).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// prune drops timestamps that have left the window; callers hold the lock
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.stamps) && !r.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[i:]...)
	}
}
