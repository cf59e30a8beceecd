package interventions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
	storage "github.com/ternarybob/tendril/internal/storage/badger"
)

// Miner turns resolved interventions into behavior rules. Repeated
// resolutions of the same shape build support for a rule candidate until
// it crosses its kind's confirmation threshold and auto-approves.
type Miner struct {
	rules  interfaces.RuleStorage
	logger arbor.ILogger
}

// NewMiner creates a rule miner over the given rule store
func NewMiner(rules interfaces.RuleStorage, logger arbor.ILogger) *Miner {
	return &Miner{rules: rules, logger: logger}
}

// Observe records a resolved intervention against its rule candidate,
// creating the candidate on first sight
func (m *Miner) Observe(ctx context.Context, task *models.InterventionTask) error {
	kind, field, pattern := ruleCandidate(task)
	if kind == "" {
		return nil
	}

	now := time.Now()
	rule, err := m.rules.FindRule(ctx, kind, task.Domain, field, pattern)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rule = &models.Rule{
			ID:        "rule_" + uuid.New().String(),
			Kind:      kind,
			Scope:     task.Domain,
			Field:     field,
			Pattern:   pattern,
			Support:   1,
			Status:    models.RuleCandidate,
			CreatedAt: now,
		}
	case err != nil:
		return fmt.Errorf("failed to look up rule candidate: %w", err)
	default:
		rule.Support++
	}

	if rule.Status == models.RuleCandidate && rule.Support >= models.ConfirmationThreshold(kind) {
		rule.Status = models.RuleApproved
		if m.logger != nil {
			m.logger.Info().
				Str("rule", rule.ID).
				Str("kind", string(kind)).
				Str("scope", rule.Scope).
				Int("support", rule.Support).
				Msg("Rule candidate approved")
		}
	}

	rule.UpdatedAt = now
	return m.rules.SaveRule(ctx, rule)
}

// ApprovedRules returns approved and applied rules for a kind and scope
func (m *Miner) ApprovedRules(ctx context.Context, kind models.RuleKind, scope string) ([]*models.Rule, error) {
	return m.rules.ListApprovedRules(ctx, kind, scope)
}

// MarkApplied moves an approved rule to applied after it has adjusted a run
func (m *Miner) MarkApplied(ctx context.Context, rule *models.Rule) error {
	if rule.Status != models.RuleApproved {
		return nil
	}
	rule.Status = models.RuleApplied
	rule.UpdatedAt = time.Now()
	return m.rules.SaveRule(ctx, rule)
}

// ruleCandidate maps a resolved intervention to the rule shape it supports.
// Captcha solves and manual access grants are one-off events with no
// repeatable adjustment, so they mine nothing.
func ruleCandidate(task *models.InterventionTask) (models.RuleKind, string, string) {
	switch task.Kind {
	case models.InterventionFieldConfirm:
		if task.Context.Field == "" {
			return "", "", ""
		}
		return models.RuleFieldNormalization, task.Context.Field, task.Context.Field
	case models.InterventionSelectorFix:
		return models.RuleSelectorPattern, "", task.Context.SnapshotHash
	case models.InterventionLoginRefresh:
		return models.RuleAuthRefreshTrigger, "", task.Domain
	default:
		return "", "", ""
	}
}
