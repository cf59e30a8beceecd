package fields

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during URL normalization
var trackingParams = map[string]bool{
	"fbclid":      true,
	"gclid":       true,
	"msclkid":     true,
	"mc_cid":      true,
	"mc_eid":      true,
	"igshid":      true,
	"ref":         true,
	"ref_src":     true,
	"spm":         true,
	"_hsenc":      true,
	"_hsmi":       true,
	"vero_id":     true,
	"yclid":       true,
	"s_kwcid":     true,
	"dclid":       true,
	"zanpid":      true,
	"wickedid":    true,
	"irclickid":   true,
	"twclid":      true,
	"oly_anon_id": true,
	"oly_enc_id":  true,
}

func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	return trackingParams[lower]
}

// parseURL normalizes a URL: default scheme, lowercase host, tracking
// parameters removed
func parseURL(raw string, ctx ParseContext) Outcome {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fail("invalid_url")
	}

	scheme := ctx.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if !strings.Contains(text, "://") {
		text = scheme + "://" + text
	}

	u, err := url.Parse(text)
	if err != nil {
		return fail("invalid_url")
	}
	if u.Host == "" {
		return fail("invalid_url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail("unsupported_url_scheme")
	}

	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		query := u.Query()
		for name := range query {
			if isTrackingParam(name) {
				query.Del(name)
			}
		}
		u.RawQuery = query.Encode()
	}

	return Outcome{
		Value:      u.String(),
		Indicators: []string{IndicatorFormat, IndicatorNormalized},
	}
}
