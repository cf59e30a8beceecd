package sessions

import (
	"time"

	"github.com/ternarybob/tendril/internal/models"
)

const (
	maxAgeMinutes     = 120.0
	maxFailureStreak  = 3
	softUseLimit      = 50
	maxUses           = 100
	hardCapUses       = 200
	healthyThreshold  = 70.0
	degradedThreshold = 40.0
)

// TrustScore computes a session's trust on a 0..100 scale. Age past an
// hour, failure streaks and heavy reuse all decay trust; a success inside
// the last five minutes earns it back.
func TrustScore(s *models.Session, now time.Time) float64 {
	score := 100.0

	if age := s.AgeMinutes(now); age > 60 {
		score -= (age - 60) * 0.5
	}

	score -= float64(s.FailureStreak) * 15

	if !s.LastSuccessAt.IsZero() && now.Sub(s.LastSuccessAt) < 5*time.Minute {
		score += 20
	}

	if s.UseCount > softUseLimit {
		score -= float64(s.UseCount - softUseLimit)
	}
	if s.UseCount > maxUses {
		score -= 50
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Band buckets a trust score
func Band(score float64) models.TrustBand {
	switch {
	case score >= healthyThreshold:
		return models.TrustHealthy
	case score >= degradedThreshold:
		return models.TrustDegraded
	default:
		return models.TrustRetired
	}
}
