package fields

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// disposableDomains flags throwaway mail providers
var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"temp-mail.org":     true,
	"throwaway.email":   true,
	"yopmail.com":       true,
	"trashmail.com":     true,
	"sharklasers.com":   true,
	"getnada.com":       true,
}

// parseEmail normalizes and validates an email address
func parseEmail(raw string, _ ParseContext) Outcome {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(strings.ToLower(value), "mailto:")
	value = strings.TrimSpace(value)

	if len(value) < 3 || len(value) > 254 {
		return fail("invalid_email_length")
	}
	if !emailPattern.MatchString(value) {
		return fail("invalid_email_format")
	}

	outcome := Outcome{
		Value:      value,
		Indicators: []string{IndicatorFormat, IndicatorNormalized},
	}

	at := strings.LastIndex(value, "@")
	domain := value[at+1:]
	if disposableDomains[domain] {
		outcome.Errors = append(outcome.Errors, "disposable_email_domain")
	}

	return outcome
}

// regionCallingCodes maps supported phone regions to country codes
var regionCallingCodes = map[string]string{
	"US": "1",
	"CA": "1",
	"GB": "44",
	"AU": "61",
	"IN": "91",
	"DE": "49",
	"FR": "33",
}

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// parsePhone normalizes phone numbers to E.164 where the region allows.
// International input (leading +) is accepted for any region; national
// input needs a known calling code to be normalized.
func parsePhone(raw string, ctx ParseContext) Outcome {
	return parsePhoneWithRegion(raw, ctx.Region)
}

func parsePhoneWithRegion(raw, region string) Outcome {
	cleaned := nonPhoneChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return fail("invalid_phone")
	}

	if strings.HasPrefix(cleaned, "+") {
		digits := strings.TrimPrefix(cleaned, "+")
		if strings.Contains(digits, "+") || len(digits) < 8 || len(digits) > 15 {
			return fail("invalid_phone")
		}
		return Outcome{
			Value:      "+" + digits,
			Indicators: []string{IndicatorFormat, IndicatorNormalized},
		}
	}

	digits := cleaned
	code, known := regionCallingCodes[strings.ToUpper(region)]
	if !known {
		if len(digits) < 8 || len(digits) > 15 {
			return fail("invalid_phone")
		}
		// No calling code to apply; keep the national digits
		return Outcome{
			Value:      digits,
			Indicators: []string{IndicatorParsed},
		}
	}

	// North American style: accept 10 digits, or 11 with the code prefixed
	if code == "1" {
		switch {
		case len(digits) == 10:
			return Outcome{
				Value:      "+1" + digits,
				Indicators: []string{IndicatorFormat, IndicatorNormalized},
			}
		case len(digits) == 11 && strings.HasPrefix(digits, "1"):
			return Outcome{
				Value:      "+" + digits,
				Indicators: []string{IndicatorFormat, IndicatorNormalized},
			}
		default:
			return fail("invalid_phone")
		}
	}

	if strings.HasPrefix(digits, "0") {
		digits = strings.TrimPrefix(digits, "0")
	}
	if len(digits) < 6 || len(digits) > 14 {
		return fail("invalid_phone")
	}
	return Outcome{
		Value:      "+" + code + digits,
		Indicators: []string{IndicatorFormat, IndicatorNormalized},
	}
}
