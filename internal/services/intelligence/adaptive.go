package intelligence

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	storage "github.com/ternarybob/tendril/internal/storage/badger"
)

// Engine cost weights, relative to one plain HTTP fetch
var engineCosts = map[models.Engine]float64{
	models.EngineHTTP:     1.0,
	models.EngineBrowser:  3.0,
	models.EngineProvider: 10.0,
}

const (
	// minAttempts gates biasing until a domain has enough history
	minAttempts = 5
	// lowSuccess is the rate below which an engine is considered wasted effort
	lowSuccess = 0.20
	// highSuccess is the rate above which an engine is considered proven
	highSuccess = 0.85
	// escalationAlpha is the EMA weight for avg escalations per run
	escalationAlpha = 0.3
	// blockAlpha is the EMA weight for the 403 block rate
	blockAlpha = 0.1
)

// Service learns per-domain engine performance and biases the starting
// tier so well-understood domains skip rungs that never work for them
type Service struct {
	store  interfaces.DomainStatsStorage
	logger arbor.ILogger

	mu    sync.Mutex
	cache map[string]*models.DomainStats
}

// NewService creates the adaptive engine service
func NewService(store interfaces.DomainStatsStorage, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		cache:  make(map[string]*models.DomainStats),
	}
}

// stats returns the cached stats for a domain, loading or creating as needed.
// Caller must hold s.mu.
func (s *Service) stats(ctx context.Context, domain string) *models.DomainStats {
	if cached, ok := s.cache[domain]; ok {
		return cached
	}

	stats, err := s.store.GetDomainStats(ctx, domain)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to load domain stats")
		}
		stats = &models.DomainStats{
			Domain:  domain,
			Engines: make(map[models.Engine]models.EngineStats),
		}
	}
	if stats.Engines == nil {
		stats.Engines = make(map[models.Engine]models.EngineStats)
	}

	s.cache[domain] = stats
	return stats
}

// ChooseEngine returns the cheapest engine worth starting on for a domain.
// Domains with little history always start at http: cost discipline beats
// guesswork until the numbers mean something.
func (s *Service) ChooseEngine(ctx context.Context, domain string) models.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats(ctx, domain)
	httpStats := stats.Engines[models.EngineHTTP]
	browserStats := stats.Engines[models.EngineBrowser]

	// A proven browser record outranks thin http history: the domain has
	// already shown it needs rendering
	browserProven := browserStats.Attempts >= minAttempts && browserStats.SuccessRate() > highSuccess

	if httpStats.Attempts < minAttempts {
		if browserProven {
			return models.EngineBrowser
		}
		return models.EngineHTTP
	}

	httpRate := httpStats.SuccessRate()
	switch {
	case httpRate < lowSuccess:
		s.logger.Debug().
			Str("domain", domain).
			Float64("http_success_rate", httpRate).
			Msg("Biasing start tier to browser, http rarely succeeds here")
		return models.EngineBrowser
	case httpRate >= highSuccess:
		return models.EngineHTTP
	case browserProven:
		return models.EngineBrowser
	default:
		return models.EngineHTTP
	}
}

// RecordOutcome folds one run outcome into the domain's stats, including
// the record yield and the engine-weighted cost the run spent to get it
func (s *Service) RecordOutcome(ctx context.Context, domain string, engine models.Engine, success bool, escalations, records int, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats(ctx, domain)

	engineStats := stats.Engines[engine]
	engineStats.Attempts++
	if success {
		engineStats.Successes++
	}
	stats.Engines[engine] = engineStats

	stats.AvgEscalations = escalationAlpha*float64(escalations) + (1-escalationAlpha)*stats.AvgEscalations
	stats.TotalRecords += records
	stats.TotalCost += cost
	if stats.TotalRecords > 0 {
		stats.AvgCostPerRecord = stats.TotalCost / float64(stats.TotalRecords)
	}

	if err := s.store.SaveDomainStats(ctx, stats); err != nil {
		s.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to persist domain stats")
	}
}

// RecordBlock403 folds a 403-or-not observation into the domain's block rate
func (s *Service) RecordBlock403(ctx context.Context, domain string, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats(ctx, domain)
	observation := 0.0
	if blocked {
		observation = 1.0
	}
	stats.BlockRate403 = stats.BlockRate403*(1-blockAlpha) + observation*blockAlpha

	if err := s.store.SaveDomainStats(ctx, stats); err != nil {
		s.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to persist domain stats")
	}
}

// BlockRate403 returns the current 403 block rate EMA for a domain
func (s *Service) BlockRate403(ctx context.Context, domain string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats(ctx, domain).BlockRate403
}

// EngineCost returns the relative cost weight for an engine
func EngineCost(engine models.Engine) float64 {
	if cost, ok := engineCosts[engine]; ok {
		return cost
	}
	return 1.0
}

// ExpectedCost estimates the cost of a run starting at the given engine,
// weighted by the domain's average escalation depth
func (s *Service) ExpectedCost(ctx context.Context, domain string, start models.Engine) float64 {
	s.mu.Lock()
	stats := s.stats(ctx, domain)
	avg := stats.AvgEscalations
	s.mu.Unlock()

	cost := EngineCost(start)
	idx := models.TierIndex(start)
	remaining := avg
	for i := idx + 1; i < len(models.TierOrder) && remaining > 0; i++ {
		step := remaining
		if step > 1 {
			step = 1
		}
		cost += EngineCost(models.TierOrder[i]) * step
		remaining -= step
	}
	return cost
}
