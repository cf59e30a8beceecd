package models

import (
	"time"
)

// TrustBand buckets a session's trust score
type TrustBand string

const (
	TrustHealthy  TrustBand = "healthy"
	TrustDegraded TrustBand = "degraded"
	TrustRetired  TrustBand = "retired"
)

// Session is one reusable authenticated browsing identity for a domain.
// State is an opaque blob (cookies, local storage dump) persisted as-is.
type Session struct {
	ID            string            `json:"id"`
	Domain        string            `json:"domain"`
	Proxy         string            `json:"proxy"` // "default" when no proxy is pinned
	State         map[string]string `json:"state,omitempty"`
	Cookies       []SessionCookie   `json:"cookies,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastUsedAt    time.Time         `json:"last_used_at"`
	LastSuccessAt time.Time         `json:"last_success_at"`
	UseCount      int               `json:"use_count"`
	FailureStreak int               `json:"failure_streak"`
	CaptchaCount  int               `json:"captcha_count"`
	Retired       bool              `json:"retired"`
}

// SessionCookie is a minimal cookie representation for persistence
type SessionCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Key returns the pool key for this session's (domain, proxy) pair
func (s *Session) Key() string {
	proxy := s.Proxy
	if proxy == "" {
		proxy = "default"
	}
	return s.Domain + "|" + proxy
}

// AgeMinutes returns the session age in minutes at the given instant
func (s *Session) AgeMinutes(now time.Time) float64 {
	return now.Sub(s.CreatedAt).Minutes()
}
