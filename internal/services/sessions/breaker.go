package sessions

import (
	"sync"
	"time"
)

const (
	breakerFailureThreshold = 10
	breakerCooldown         = 30 * time.Minute
)

// circuitBreaker trips per domain after a run of failures and stays open
// until the cooldown expires or any success lands. A success closes the
// circuit immediately, cooldown or not.
type circuitBreaker struct {
	mu       sync.Mutex
	failures map[string]int
	openedAt map[string]time.Time
	now      func() time.Time
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		failures: make(map[string]int),
		openedAt: make(map[string]time.Time),
		now:      time.Now,
	}
}

// IsOpen reports whether the domain's circuit is open. An expired cooldown
// closes the circuit and clears the failure count.
func (b *circuitBreaker) IsOpen(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	opened, ok := b.openedAt[domain]
	if !ok {
		return false
	}
	if b.now().Sub(opened) >= breakerCooldown {
		delete(b.openedAt, domain)
		delete(b.failures, domain)
		return false
	}
	return true
}

// RecordFailure ticks the domain's failure count, opening the circuit at
// the threshold
func (b *circuitBreaker) RecordFailure(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures[domain]++
	if b.failures[domain] >= breakerFailureThreshold {
		if _, open := b.openedAt[domain]; !open {
			b.openedAt[domain] = b.now()
		}
	}
}

// RecordSuccess closes the domain's circuit and clears failure tracking
func (b *circuitBreaker) RecordSuccess(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.openedAt, domain)
	delete(b.failures, domain)
}
