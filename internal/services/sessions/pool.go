package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
)

var (
	// ErrNoSession is returned when no usable session exists for a pair
	ErrNoSession = errors.New("no usable session for domain")

	// ErrCircuitOpen is returned while a domain's circuit breaker is open
	ErrCircuitOpen = errors.New("session circuit open for domain")
)

// Pool is the trust-scored session pool. One session is held per
// (domain, proxy) pair, scored on every Get, and persisted to disk on
// every state change.
type Pool struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	store     *fileStore
	breaker   *circuitBreaker
	lifetimes *lifetimeEstimator
	logger    arbor.ILogger
	now       func() time.Time
}

// NewPool loads persisted sessions and returns a ready pool
func NewPool(cfg *common.Config, logger arbor.ILogger) (*Pool, error) {
	store, err := newFileStore(cfg.Sessions.Dir, cfg.MaxPersistedAgeDuration())
	if err != nil {
		return nil, err
	}

	loaded, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 && logger != nil {
		logger.Info().Int("count", len(loaded)).Msg("Loaded persisted sessions")
	}

	return &Pool{
		sessions:  loaded,
		store:     store,
		breaker:   newCircuitBreaker(),
		lifetimes: newLifetimeEstimator(),
		logger:    logger,
		now:       time.Now,
	}, nil
}

func poolKey(domain, proxy string) string {
	if proxy == "" {
		proxy = "default"
	}
	return domain + "|" + proxy
}

// Get returns a usable session for the pair. The hard limits — use cap,
// age ceiling, failure streak — are checked before trust so a session
// cannot score its way past them. Serving a session counts as a use.
func (p *Pool) Get(_ context.Context, domain, proxy string) (*models.Session, error) {
	if p.breaker.IsOpen(domain) {
		return nil, ErrCircuitOpen
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey(domain, proxy)
	session, ok := p.sessions[key]
	if !ok || session.Retired {
		return nil, ErrNoSession
	}

	now := p.now()
	if session.UseCount >= hardCapUses {
		p.retireLocked(session, "hard use cap")
		return nil, ErrNoSession
	}
	if session.AgeMinutes(now) > maxAgeMinutes {
		p.retireLocked(session, "age ceiling")
		return nil, ErrNoSession
	}
	if session.FailureStreak >= maxFailureStreak {
		p.retireLocked(session, "failure streak")
		return nil, ErrNoSession
	}

	score := TrustScore(session, now)
	if Band(score) == models.TrustRetired {
		p.retireLocked(session, "trust exhausted")
		return nil, ErrNoSession
	}

	session.UseCount++
	session.LastUsedAt = now
	p.persistLocked(session)

	return session, nil
}

// Put registers a session with the pool, replacing any existing session
// for the same pair
func (p *Pool) Put(_ context.Context, session *models.Session) error {
	if session.Domain == "" {
		return errors.New("session has no domain")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = p.now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sessions[session.Key()] = session
	p.persistLocked(session)
	return nil
}

// MarkSuccess clears the failure streak and feeds the circuit breaker
func (p *Pool) MarkSuccess(_ context.Context, session *models.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session.FailureStreak = 0
	session.LastSuccessAt = p.now()
	p.breaker.RecordSuccess(session.Domain)
	p.persistLocked(session)
	return nil
}

// MarkFailure ticks the failure streak, retiring the session when the
// streak limit is reached, and feeds the circuit breaker either way
func (p *Pool) MarkFailure(_ context.Context, session *models.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session.FailureStreak++
	p.breaker.RecordFailure(session.Domain)

	if session.FailureStreak >= maxFailureStreak {
		p.retireLocked(session, "failure streak")
	} else {
		p.persistLocked(session)
	}
	return nil
}

// MarkCaptcha counts a captcha encounter; captchas also count as failures
// for streak purposes
func (p *Pool) MarkCaptcha(ctx context.Context, session *models.Session) error {
	p.mu.Lock()
	session.CaptchaCount++
	p.mu.Unlock()

	return p.MarkFailure(ctx, session)
}

// Trust returns the session's current trust score
func (p *Pool) Trust(session *models.Session) float64 {
	return TrustScore(session, p.now())
}

// ShouldRefresh reports whether the session is near its estimated lifetime
func (p *Pool) ShouldRefresh(session *models.Session) bool {
	return p.lifetimes.ShouldRefresh(session)
}

// EstimatedLifetime returns the average observed session lifetime for a
// domain, zero when unknown
func (p *Pool) EstimatedLifetime(domain string) time.Duration {
	return p.lifetimes.Estimate(domain)
}

// Sweep retires sessions past the age ceiling or with exhausted trust,
// returning the number retired. Run on a schedule.
func (p *Pool) Sweep(_ context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	retired := 0
	for _, session := range p.sessions {
		if session.Retired {
			continue
		}
		if session.AgeMinutes(now) > maxAgeMinutes || Band(TrustScore(session, now)) == models.TrustRetired {
			p.retireLocked(session, "sweep")
			retired++
		}
	}

	if retired > 0 && p.logger != nil {
		p.logger.Info().Int("retired", retired).Msg("Session sweep complete")
	}
	return retired
}

// Stats summarizes pool health
func (p *Pool) Stats(_ context.Context) *interfaces.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	stats := &interfaces.PoolStats{
		TrustSample: make(map[string]float64),
	}

	captchas := 0
	uses := 0
	for key, session := range p.sessions {
		stats.Total++
		captchas += session.CaptchaCount
		uses += session.UseCount

		if session.Retired {
			stats.Retired++
			continue
		}

		score := TrustScore(session, now)
		stats.TrustSample[key] = score
		switch Band(score) {
		case models.TrustHealthy:
			stats.Healthy++
		case models.TrustDegraded:
			stats.Degraded++
		default:
			stats.Retired++
		}
	}

	if uses > 0 {
		stats.CaptchaRatePct = float64(captchas) / float64(uses) * 100
	}
	return stats
}

// Close flushes all live sessions to disk
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, session := range p.sessions {
		if !session.Retired {
			p.persistLocked(session)
		}
	}
	return nil
}

func (p *Pool) retireLocked(session *models.Session, reason string) {
	session.Retired = true
	p.lifetimes.ObserveRetirement(session)
	p.store.Remove(session.Key())
	delete(p.sessions, session.Key())

	if p.logger != nil {
		p.logger.Info().
			Str("domain", session.Domain).
			Str("session", session.ID).
			Str("reason", reason).
			Msg("Session retired")
	}
}

func (p *Pool) persistLocked(session *models.Session) {
	if err := p.store.Save(session); err != nil && p.logger != nil {
		p.logger.Warn().Err(err).Str("session", session.ID).Msg("Failed to persist session")
	}
}
