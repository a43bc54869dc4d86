package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces the requests sent to one provider
type RateLimiter interface {
	// Wait blocks until a request may be sent or ctx is done. It returns how
	// long the caller was held.
	Wait(ctx context.Context) (time.Duration, error)
}

// TokenBucketRateLimiter allows burst requests at once and then one request
// per 1/rate seconds. It tracks the time at which the bucket would be empty
// instead of a token count, so a request reserves its slot under the lock
// and sleeps outside it.
type TokenBucketRateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	window   time.Duration
	// drained is when the bucket runs dry if no tokens refill before then
	drained time.Time
	now     func() time.Time
}

// NewTokenBucketRateLimiter creates a limiter of rate requests per second
// with the given burst. A burst below one is raised to one.
func NewTokenBucketRateLimiter(rate float64, burst int) *TokenBucketRateLimiter {
	return newTokenBucket(rate, burst, time.Now)
}

func newTokenBucket(rate float64, burst int, now func() time.Time) *TokenBucketRateLimiter {
	if burst < 1 {
		burst = 1
	}
	interval := time.Duration(float64(time.Second) / rate)
	return &TokenBucketRateLimiter{
		interval: interval,
		window:   interval * time.Duration(burst),
		now:      now,
	}
}

// reserve claims the next slot and returns how long until it opens
func (tb *TokenBucketRateLimiter) reserve() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if tb.drained.Before(now) {
		tb.drained = now
	}
	delay := tb.drained.Sub(now) - (tb.window - tb.interval)
	tb.drained = tb.drained.Add(tb.interval)
	if delay < 0 {
		return 0
	}
	return delay
}

// release hands back a slot that was reserved but never used
func (tb *TokenBucketRateLimiter) release() {
	tb.mu.Lock()
	tb.drained = tb.drained.Add(-tb.interval)
	tb.mu.Unlock()
}

// Wait implements RateLimiter
func (tb *TokenBucketRateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	delay := tb.reserve()
	if delay == 0 {
		return 0, nil
	}

	start := tb.now()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return delay, nil
	case <-ctx.Done():
		tb.release()
		return tb.now().Sub(start), ctx.Err()
	}
}
