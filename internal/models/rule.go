package models

import "time"

// RuleKind names what a mined rule adjusts
type RuleKind string

const (
	RuleFieldNormalization RuleKind = "field_normalization"
	RuleSelectorPattern    RuleKind = "selector_pattern"
	RuleAuthRefreshTrigger RuleKind = "auth_refresh_trigger"
)

// RuleStatus is the candidate -> approved -> applied lifecycle
type RuleStatus string

const (
	RuleCandidate RuleStatus = "candidate"
	RuleApproved  RuleStatus = "approved"
	RuleApplied   RuleStatus = "applied"
)

// Rule is a behavior adjustment mined from resolved interventions.
// Scope is a domain or a job ID; Pattern/Replacement meaning depends on Kind.
type Rule struct {
	ID          string     `json:"id" badgerhold:"key"`
	Kind        RuleKind   `json:"kind" badgerhold:"index"`
	Scope       string     `json:"scope" badgerhold:"index"`
	Field       string     `json:"field,omitempty"`
	Pattern     string     `json:"pattern"`
	Replacement string     `json:"replacement,omitempty"`
	Support     int        `json:"support"` // Confirming resolutions observed
	Status      RuleStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ConfirmationThreshold returns the support needed before a rule kind auto-approves
func ConfirmationThreshold(kind RuleKind) int {
	switch kind {
	case RuleFieldNormalization:
		return 3
	case RuleSelectorPattern:
		return 2
	case RuleAuthRefreshTrigger:
		return 1
	default:
		return 3
	}
}
