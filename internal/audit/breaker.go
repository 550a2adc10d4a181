package audit

import (
	"sync"
	"time"
)

// Breaker stops the worker from hammering an unhealthy sink. After threshold
// consecutive failures it opens for cooldown, then lets one append through.
type Breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	openUntil time.Time
	open      bool
}

// NewBreaker creates a breaker. Non-positive arguments fall back to 5
// failures and one minute.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether the sink may be tried. An expired cooldown half-opens
// the breaker: the next failure reopens it immediately.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().Before(b.openUntil) {
		return false
	}
	b.open = false
	b.failures = b.threshold - 1
	return true
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// RecordFailure counts a failed append and reports whether it opened the
// breaker.
func (b *Breaker) RecordFailure() (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold && !b.open {
		b.open = true
		b.openUntil = b.now().Add(b.cooldown)
		return true
	}
	return false
}

func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
