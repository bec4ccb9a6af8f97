package feed

import (
	"sync"
	"time"

	"github.com/crossarb/crossarb/internal/domain"
)

const (
	// breakerThreshold is the number of consecutive connect failures that
	// opens the breaker.
	breakerThreshold = 5

	// breakerCooldown is how long connection attempts are rejected after
	// the last failure once the breaker is open.
	breakerCooldown = 60 * time.Second
)

// breaker is the per-exchange connection circuit breaker. Once open it
// rejects attempts until the cooldown has elapsed since the last failure;
// a successful connect closes it and clears the failure count.
type breaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	open        bool
	threshold   int
	cooldown    time.Duration
}

func newBreaker() *breaker {
	return &breaker{threshold: breakerThreshold, cooldown: breakerCooldown}
}

// Allow reports whether a connection attempt may proceed at now. When the
// cooldown has elapsed, a single probe attempt is allowed even though the
// breaker stays open until that probe succeeds.
func (b *breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	return now.Sub(b.lastFailure) >= b.cooldown
}

// RecordFailure counts a failed connect attempt, opening the breaker at the
// threshold.
func (b *breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = now
	if b.failures >= b.threshold {
		b.open = true
	}
}

// Reset closes the breaker after a successful connect.
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
	b.lastFailure = time.Time{}
}

// State returns a read-only snapshot for monitoring.
func (b *breaker) State() domain.CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CircuitBreakerState{
		Failures:      b.failures,
		LastFailureAt: b.lastFailure,
		IsOpen:        b.open,
	}
}
