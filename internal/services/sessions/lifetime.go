package sessions

import (
	"sync"
	"time"

	"github.com/ternarybob/tendril/internal/models"
)

const refreshFraction = 0.8

// lifetimeEstimator tracks how long sessions on a domain survive before
// retirement, so replacements can be prepared before expiry rather than
// after a failure
type lifetimeEstimator struct {
	mu      sync.Mutex
	totals  map[string]time.Duration
	retires map[string]int
	now     func() time.Time
}

func newLifetimeEstimator() *lifetimeEstimator {
	return &lifetimeEstimator{
		totals:  make(map[string]time.Duration),
		retires: make(map[string]int),
		now:     time.Now,
	}
}

// ObserveRetirement records the lifetime of a session that just retired
func (e *lifetimeEstimator) ObserveRetirement(session *models.Session) {
	lived := e.now().Sub(session.CreatedAt)
	if lived <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.totals[session.Domain] += lived
	e.retires[session.Domain]++
}

// Estimate returns the average observed lifetime for a domain, zero when
// nothing has been observed yet
func (e *lifetimeEstimator) Estimate(domain string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.retires[domain]
	if n == 0 {
		return 0
	}
	return e.totals[domain] / time.Duration(n)
}

// ShouldRefresh reports whether the session has consumed most of its
// domain's estimated lifetime
func (e *lifetimeEstimator) ShouldRefresh(session *models.Session) bool {
	estimate := e.Estimate(session.Domain)
	if estimate == 0 {
		return false
	}
	lived := e.now().Sub(session.CreatedAt)
	return lived >= time.Duration(float64(estimate)*refreshFraction)
}
