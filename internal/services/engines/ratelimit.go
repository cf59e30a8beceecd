package engines

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// domainLimiter paces requests per domain so escalating through engines
// never turns into hammering one host
type domainLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
}

func newDomainLimiter(delay time.Duration) *domainLimiter {
	if delay <= 0 {
		delay = time.Second
	}
	return &domainLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

func (l *domainLimiter) limiter(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[domain] = lim
	}
	return lim
}

// Wait blocks until the domain may be hit again or the context ends
func (l *domainLimiter) Wait(ctx context.Context, domain string) error {
	return l.limiter(domain).Wait(ctx)
}
