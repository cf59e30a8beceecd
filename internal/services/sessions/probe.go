package sessions

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/tendril/internal/models"
)

// ProbeResult classifies a session validity check
type ProbeResult string

const (
	ProbeValid   ProbeResult = "valid"
	ProbeInvalid ProbeResult = "invalid"
	ProbeUnknown ProbeResult = "unknown"
)

// Prober checks whether a session still authenticates against its domain
// without running a full scrape
type Prober struct {
	client *http.Client
}

// NewProber builds a prober with the given timeout
func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe issues a HEAD request with the session's cookies attached.
// 200 means the session is valid, 401/403 mean it has expired, anything
// else is inconclusive.
func (p *Prober) Probe(ctx context.Context, session *models.Session, probeURL string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return ProbeUnknown, fmt.Errorf("failed to build probe request: %w", err)
	}

	for _, cookie := range session.Cookies {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeUnknown, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return ProbeValid, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ProbeInvalid, nil
	default:
		return ProbeUnknown, nil
	}
}
