package interventions

import (
	"github.com/ternarybob/tendril/internal/models"
)

// highBlockRate is the domain 403 rate above which open work is urgent
const highBlockRate = 0.7

var priorityRank = map[models.InterventionPriority]int{
	models.PriorityLow:      0,
	models.PriorityNormal:   1,
	models.PriorityHigh:     2,
	models.PriorityCritical: 3,
}

// baselinePriority is the default urgency for an intervention kind.
// Manual access starts high: the ladder has already exhausted every
// automated path when it is raised.
func baselinePriority(kind models.InterventionKind) models.InterventionPriority {
	switch kind {
	case models.InterventionLoginRefresh:
		return models.PriorityLow
	case models.InterventionManualAccess:
		return models.PriorityHigh
	case models.InterventionCaptchaSolve, models.InterventionSelectorFix, models.InterventionFieldConfirm:
		return models.PriorityNormal
	default:
		return models.PriorityNormal
	}
}

// bumpForBlockRate raises a task to high priority on a heavily blocked
// domain. It never lowers an already higher priority.
func bumpForBlockRate(p models.InterventionPriority, blockRate float64) models.InterventionPriority {
	if blockRate > highBlockRate && priorityRank[p] < priorityRank[models.PriorityHigh] {
		return models.PriorityHigh
	}
	return p
}
