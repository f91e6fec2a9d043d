package elev

import (
	"context"
	"sync"
	"time"
)

// A Clock supplies the time and timers to the client, so that tests can
// run backoff and rate limiting without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// sleep waits for d on clock, or until ctx is done.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// A Limiter spaces request starts at least interval apart, across all the
// goroutines sharing it.
type Limiter struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	next     time.Time
}

func NewLimiter(clock Clock, interval time.Duration) *Limiter {
	return &Limiter{clock: clock, interval: interval}
}

// Wait blocks until the caller may start a request. The slot is reserved
// even if ctx ends while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.clock.Now()
	t := l.next
	if t.Before(now) {
		t = now
	}
	l.next = t.Add(l.interval)
	l.mu.Unlock()
	return sleep(ctx, l.clock, t.Sub(now))
}
