package fields

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/ternarybob/tendril/internal/models"
)

var (
	patternCacheMu sync.RWMutex
	patternCache   = make(map[string]*regexp.Regexp)
)

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.RLock()
	re, ok := patternCache[pattern]
	patternCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patternCacheMu.Lock()
	patternCache[pattern] = re
	patternCacheMu.Unlock()
	return re, nil
}

// Validate applies field-level constraints to a parsed outcome: numeric
// range, string length, value allowlist, host allowlist for email and
// url fields, and a custom regex. Errors are appended to the outcome
// rather than replacing the value: the consumer sees both the value and
// why it is suspect.
func Validate(def models.FieldDef, outcome *Outcome) {
	if outcome.Value == nil {
		return
	}

	if def.Min != nil || def.Max != nil {
		if numeric, ok := numericValue(outcome.Value); ok {
			if def.Min != nil && numeric < *def.Min {
				outcome.Errors = append(outcome.Errors, "below_minimum")
			}
			if def.Max != nil && numeric > *def.Max {
				outcome.Errors = append(outcome.Errors, "above_maximum")
			}
		}
	}

	text, isText := outcome.Value.(string)
	if !isText {
		return
	}

	if def.MinLen != nil && len(text) < *def.MinLen {
		outcome.Errors = append(outcome.Errors, "below_min_length")
	}
	if def.MaxLen != nil && len(text) > *def.MaxLen {
		outcome.Errors = append(outcome.Errors, "above_max_length")
	}

	if len(def.AllowedValues) > 0 && !valueAllowed(def.AllowedValues, text) {
		outcome.Errors = append(outcome.Errors, "value_not_allowed")
	}

	if len(def.AllowedDomains) > 0 {
		if host, ok := valueHost(def.Type, text); ok && !hostAllowed(def.AllowedDomains, host) {
			outcome.Errors = append(outcome.Errors, "domain_not_allowed")
		}
	}

	if def.Pattern != "" {
		re, err := compiledPattern(def.Pattern)
		if err != nil {
			outcome.Errors = append(outcome.Errors, "invalid_pattern")
		} else if !re.MatchString(text) {
			outcome.Errors = append(outcome.Errors, "pattern_mismatch")
		}
	}
}

func valueAllowed(allowed []string, value string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), value) {
			return true
		}
	}
	return false
}

// valueHost pulls the host portion out of an email or url value.
// Other field types carry no host to check.
func valueHost(fieldType models.FieldType, value string) (string, bool) {
	switch fieldType {
	case models.FieldTypeEmail:
		at := strings.LastIndex(value, "@")
		if at < 0 || at == len(value)-1 {
			return "", false
		}
		return strings.ToLower(value[at+1:]), true
	case models.FieldTypeURL, models.FieldTypeImageURL:
		u, err := url.Parse(value)
		if err != nil || u.Hostname() == "" {
			return "", false
		}
		return strings.ToLower(u.Hostname()), true
	default:
		return "", false
	}
}

// hostAllowed matches the host itself or any subdomain of an allowed
// domain
func hostAllowed(allowed []string, host string) bool {
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case MoneyValue:
		return v.Amount, true
	default:
		return 0, false
	}
}
