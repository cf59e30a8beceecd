package escalation

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signal names emitted by the detectors. These end up on the run's
// engine attempt log and drive the ladder decision.
const (
	SignalBlockedStatus    = "blocked_status_code"
	SignalJSApp            = "js_app_detected"
	SignalExtractionFail   = "extraction_confidence_fail"
	SignalRobotsNoindex    = "robots_noindex"
	SignalBlockedDetected  = "blocked_detected"
	SignalNavigationFailed = "navigation_failed"
	SignalCaptchaDetected  = "captcha_detected"
)

// jsMarkers are substrings that betray a client-rendered app shell.
// Plain HTTP fetches of these pages return scaffolding, not content.
var jsMarkers = []string{
	"__NEXT_DATA__",
	"data-reactroot",
	"ng-version",
	"v-cloak",
	"window.__NUXT__",
	"__svelte",
	"data-react-helmet",
}

// blockMarkers are phrases interstitial and denial pages use
var blockMarkers = []string{
	"checking your browser",
	"access denied",
	"verify you are human",
	"cloudflare",
	"ddos protection",
	"captcha",
	"are you a robot",
	"unusual traffic",
	"blocked",
}

// HTTPContext carries the inputs to HTTP-tier signal detection
type HTTPContext struct {
	Status         int
	HTML           string
	ExtractedCount int
	HasRequired    bool // Job declares required selectors
}

// FirstHTTPSignal returns the first escalation trigger found for an
// HTTP-tier fetch, or "" when the result needs no escalation.
// Detectors run in a fixed order; the first hit wins.
func FirstHTTPSignal(hc HTTPContext) string {
	if isBlockStatus(hc.Status) {
		return SignalBlockedStatus
	}
	if looksLikeJSApp(hc.HTML) {
		return SignalJSApp
	}
	if hc.ExtractedCount == 0 && hc.HasRequired {
		return SignalExtractionFail
	}
	if hasRobotsNoindex(hc.HTML) {
		return SignalRobotsNoindex
	}
	return ""
}

// BrowserContext carries the inputs to browser-tier signal detection
type BrowserContext struct {
	Status           int
	HTML             string
	ExtractedCount   int
	HasRequired      bool // Job declares required selectors
	NavigationFailed bool
	CaptchaPresent   bool
}

// FirstBrowserSignal returns the first escalation trigger found for a
// browser-tier fetch, or "" when none applies. A rendered page that
// yields nothing against required selectors is a signal too: a clean
// status with zero items must never read as success.
func FirstBrowserSignal(bc BrowserContext) string {
	if bc.NavigationFailed {
		return SignalNavigationFailed
	}
	if bc.CaptchaPresent {
		return SignalCaptchaDetected
	}
	if isBlockStatus(bc.Status) || containsBlockMarker(bc.HTML) {
		return SignalBlockedDetected
	}
	if bc.ExtractedCount == 0 && bc.HasRequired {
		return SignalExtractionFail
	}
	return ""
}

func isBlockStatus(status int) bool {
	return status == 401 || status == 403 || status == 429
}

func looksLikeJSApp(html string) bool {
	for _, marker := range jsMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return hasEmptyAppDiv(html)
}

// hasEmptyAppDiv detects the bare <div id="app"></div> mount point SPAs
// leave behind before hydration
func hasEmptyAppDiv(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	app := doc.Find("div#app")
	if app.Length() == 0 {
		return false
	}
	return strings.TrimSpace(app.First().Text()) == ""
}

func hasRobotsNoindex(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	found := false
	doc.Find(`meta[name="robots"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			if strings.Contains(strings.ToLower(content), "noindex") {
				found = true
			}
		}
	})
	return found
}

// captchaSelectors match the widgets the common captcha vendors inject
var captchaSelectors = []string{
	".g-recaptcha",
	".h-captcha",
	".cf-turnstile",
	`iframe[src*="recaptcha"]`,
	`iframe[src*="hcaptcha"]`,
}

// HasCaptchaElement reports whether a rendered page carries a captcha
// widget, as opposed to merely mentioning captchas in text
func HasCaptchaElement(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range captchaSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func containsBlockMarker(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
