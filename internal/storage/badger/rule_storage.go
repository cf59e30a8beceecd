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

// RuleStorage implements mined-rule persistence for Badger
type RuleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRuleStorage creates a new RuleStorage instance
func NewRuleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RuleStorage {
	return &RuleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RuleStorage) SaveRule(ctx context.Context, rule *models.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule ID is required")
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := s.db.Store().Upsert(rule.ID, rule); err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

func (s *RuleStorage) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	var rule models.Rule
	if err := s.db.Store().Get(id, &rule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

func (s *RuleStorage) FindRule(ctx context.Context, kind models.RuleKind, scope, field, pattern string) (*models.Rule, error) {
	var rules []models.Rule
	query := badgerhold.Where("Kind").Eq(kind).And("Scope").Eq(scope).
		And("Field").Eq(field).And("Pattern").Eq(pattern)
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule %s/%s/%s: %w", kind, scope, field, ErrNotFound)
	}
	return &rules[0], nil
}

func (s *RuleStorage) ListRulesByScope(ctx context.Context, scope string) ([]*models.Rule, error) {
	var rules []models.Rule
	query := badgerhold.Where("Scope").Eq(scope).Index("Scope").SortBy("CreatedAt")
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list rules by scope: %w", err)
	}

	result := make([]*models.Rule, len(rules))
	for i := range rules {
		result[i] = &rules[i]
	}
	return result, nil
}

func (s *RuleStorage) ListApprovedRules(ctx context.Context, kind models.RuleKind, scope string) ([]*models.Rule, error) {
	var rules []models.Rule
	query := badgerhold.Where("Kind").Eq(kind).And("Scope").Eq(scope).
		And("Status").In(models.RuleApproved, models.RuleApplied)
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list approved rules: %w", err)
	}

	result := make([]*models.Rule, len(rules))
	for i := range rules {
		result[i] = &rules[i]
	}
	return result, nil
}
