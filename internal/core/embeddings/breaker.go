package embeddings

import (
	"sync"
	"time"
)

// Breaker defaults, used when the configured values are zero.
const (
	defaultBreakerThreshold = 5
	defaultBreakerReset     = time.Minute
)

// breaker is a per-provider circuit breaker. It opens after a run of
// consecutive failures and closes again once the reset window has passed.
type breaker struct {
	mu        sync.Mutex
	threshold int
	reset     time.Duration
	failures  int
	openUntil time.Time
}

func newBreaker(threshold int, reset time.Duration) *breaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}

	if reset <= 0 {
		reset = defaultBreakerReset
	}

	return &breaker{threshold: threshold, reset: reset}
}

// allow reports whether a call may be attempted.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return !time.Now().Before(b.openUntil)
}

// observe records the outcome of a call. It returns true exactly when this
// failure tripped the breaker open, so the caller can log the transition.
func (b *breaker) observe(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0

		return false
	}

	b.failures++
	if b.failures == b.threshold {
		b.openUntil = time.Now().Add(b.reset)

		return true
	}

	if b.failures > b.threshold {
		b.openUntil = time.Now().Add(b.reset)
	}

	return false
}
