package classifier

import (
	"strings"

	"github.com/ternarybob/tendril/internal/models"
)

// BlockVerdict is the pause decision for a blocked-looking outcome
type BlockVerdict struct {
	Pause bool
	Kind  models.InterventionKind
}

// BlockContext carries what the block classifier needs to decide
type BlockContext struct {
	Status      int
	ErrorText   string
	HasSession  bool
	ItemCount   int
	AccessClass models.AccessClass
}

// ClassifyBlock decides whether an outcome warrants pausing the run for a
// human, and which intervention kind the pause should raise. Rate limits,
// network flaps and timeouts never pause; they are retry territory.
func ClassifyBlock(bc BlockContext) BlockVerdict {
	errText := strings.ToLower(bc.ErrorText)

	switch {
	case bc.Status == 403 && bc.HasSession:
		return BlockVerdict{Pause: true, Kind: models.InterventionLoginRefresh}
	case bc.Status == 403:
		return BlockVerdict{Pause: true, Kind: models.InterventionManualAccess}
	case bc.Status == 401:
		return BlockVerdict{Pause: true, Kind: models.InterventionLoginRefresh}
	case strings.Contains(errText, "captcha"):
		return BlockVerdict{Pause: true, Kind: models.InterventionCaptchaSolve}
	case strings.Contains(errText, "cloudflare"), strings.Contains(errText, "challenge"):
		return BlockVerdict{Pause: true, Kind: models.InterventionManualAccess}
	case bc.Status == 200 && bc.ItemCount == 0 && bc.AccessClass != models.AccessPublic:
		return BlockVerdict{Pause: true, Kind: models.InterventionSelectorFix}
	default:
		return BlockVerdict{}
	}
}
