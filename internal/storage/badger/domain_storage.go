package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DomainStatsStorage implements adaptive stats persistence for Badger
type DomainStatsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDomainStatsStorage creates a new DomainStatsStorage instance
func NewDomainStatsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DomainStatsStorage {
	return &DomainStatsStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DomainStatsStorage) SaveDomainStats(ctx context.Context, stats *models.DomainStats) error {
	if stats.Domain == "" {
		return fmt.Errorf("domain stats require a domain")
	}
	stats.LastUpdated = time.Now()

	if err := s.db.Store().Upsert(stats.Domain, stats); err != nil {
		return fmt.Errorf("failed to save domain stats: %w", err)
	}
	return nil
}

func (s *DomainStatsStorage) GetDomainStats(ctx context.Context, domain string) (*models.DomainStats, error) {
	var stats models.DomainStats
	if err := s.db.Store().Get(domain, &stats); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("domain stats %s: %w", domain, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get domain stats: %w", err)
	}
	return &stats, nil
}

func (s *DomainStatsStorage) ListDomainStats(ctx context.Context) ([]*models.DomainStats, error) {
	var all []models.DomainStats
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to list domain stats: %w", err)
	}

	result := make([]*models.DomainStats, len(all))
	for i := range all {
		result[i] = &all[i]
	}
	return result, nil
}

// DomainConfigStorage implements per-domain override persistence for Badger
type DomainConfigStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDomainConfigStorage creates a new DomainConfigStorage instance
func NewDomainConfigStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DomainConfigStorage {
	return &DomainConfigStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DomainConfigStorage) SaveDomainConfig(ctx context.Context, config *models.DomainConfig) error {
	if config.Domain == "" {
		return fmt.Errorf("domain config requires a domain")
	}

	now := time.Now()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}
	config.UpdatedAt = now

	if err := s.db.Store().Upsert(config.Domain, config); err != nil {
		return fmt.Errorf("failed to save domain config: %w", err)
	}
	return nil
}

func (s *DomainConfigStorage) GetDomainConfig(ctx context.Context, domain string) (*models.DomainConfig, error) {
	var config models.DomainConfig
	if err := s.db.Store().Get(domain, &config); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("domain config %s: %w", domain, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get domain config: %w", err)
	}
	return &config, nil
}

func (s *DomainConfigStorage) ListDomainConfigs(ctx context.Context) ([]*models.DomainConfig, error) {
	var all []models.DomainConfig
	if err := s.db.Store().Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to list domain configs: %w", err)
	}

	result := make([]*models.DomainConfig, len(all))
	for i := range all {
		result[i] = &all[i]
	}
	return result, nil
}

func (s *DomainConfigStorage) DeleteDomainConfig(ctx context.Context, domain string) error {
	if err := s.db.Store().Delete(domain, &models.DomainConfig{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("domain config %s: %w", domain, ErrNotFound)
		}
		return fmt.Errorf("failed to delete domain config: %w", err)
	}
	return nil
}
