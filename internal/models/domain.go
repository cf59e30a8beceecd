package models

import "time"

// EngineStats tracks attempt outcomes for one engine on one domain
type EngineStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// SuccessRate returns successes/attempts, 0 when unused
func (s EngineStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// DomainStats is the adaptive memory for one domain
type DomainStats struct {
	Domain           string                 `json:"domain" badgerhold:"key"`
	Engines          map[Engine]EngineStats `json:"engines"`
	AvgEscalations   float64                `json:"avg_escalations"` // EMA, alpha 0.3
	BlockRate403     float64                `json:"block_rate_403"`
	TotalRecords     int                    `json:"total_records"`
	TotalCost        float64                `json:"total_cost"` // Unit-weighted engine cost, not currency
	AvgCostPerRecord float64                `json:"avg_cost_per_record"`
	LastUpdated      time.Time              `json:"last_updated"`
}

// AccessClass describes how a domain expects to be approached
type AccessClass string

const (
	AccessPublic AccessClass = "public" // Anonymous HTTP is welcome
	AccessInfra  AccessClass = "infra"  // Hostile infrastructure, go straight to provider
	AccessHuman  AccessClass = "human"  // Wants a human-looking session
)

// DomainConfig carries per-domain operator overrides
type DomainConfig struct {
	Domain             string        `json:"domain" badgerhold:"key"`
	AccessClass        AccessClass   `json:"access_class" validate:"omitempty,oneof=public infra human"`
	RateOverride       time.Duration `json:"rate_override,omitempty"`
	ProviderPreference []string      `json:"provider_preference,omitempty"`
	Region             string        `json:"region,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
