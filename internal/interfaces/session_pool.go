package interfaces

import (
	"context"

	"github.com/ternarybob/tendril/internal/models"
)

// PoolStats is a point-in-time summary of the session pool
type PoolStats struct {
	Total          int                `json:"total"`
	Healthy        int                `json:"healthy"`
	Degraded       int                `json:"degraded"`
	Retired        int                `json:"retired"`
	CaptchaRatePct float64            `json:"captcha_rate_pct"`
	TrustSample    map[string]float64 `json:"trust_sample"` // Session key -> trust score
}

// SessionPool manages trust-scored sessions per (domain, proxy) pair
type SessionPool interface {
	// Get returns a usable session for the pair, or ErrNoSession /
	// ErrCircuitOpen when none can be served
	Get(ctx context.Context, domain, proxy string) (*models.Session, error)

	// Put registers a freshly created session with the pool
	Put(ctx context.Context, session *models.Session) error

	// MarkSuccess records a successful use and resets failure tracking
	MarkSuccess(ctx context.Context, session *models.Session) error

	// MarkFailure records a failed use; three in a row retires the session
	MarkFailure(ctx context.Context, session *models.Session) error

	// MarkCaptcha records a captcha encounter against the session
	MarkCaptcha(ctx context.Context, session *models.Session) error

	// Trust returns the current trust score for a session
	Trust(session *models.Session) float64

	// Sweep retires sessions past their age or failure limits
	Sweep(ctx context.Context) int

	// Stats summarizes pool health
	Stats(ctx context.Context) *PoolStats

	// Close flushes persistence
	Close() error
}
