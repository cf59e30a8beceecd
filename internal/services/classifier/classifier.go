package classifier

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/ternarybob/tendril/internal/models"
)

// Classify maps a transport error and HTTP status onto the fixed failure
// taxonomy. Transport errors win over status codes: a request that never
// produced a response carries status 0.
func Classify(status int, err error) models.FailureKind {
	if err != nil {
		return classifyError(err)
	}

	switch {
	case status == 401 || status == 403:
		return models.FailureBlocked
	case status == 429:
		return models.FailureRateLimited
	case status >= 400:
		return models.FailureBadResponse
	default:
		return models.FailureUnknown
	}
}

func classifyError(err error) models.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return models.FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.FailureTimeout
		}
		return models.FailureNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.FailureNetwork
	}

	return models.FailureUnknown
}

// IsBlockSignal reports whether a failure kind indicates the target is
// actively refusing us rather than merely misbehaving
func IsBlockSignal(kind models.FailureKind) bool {
	switch kind {
	case models.FailureBlocked, models.FailureRateLimited:
		return true
	default:
		return false
	}
}
