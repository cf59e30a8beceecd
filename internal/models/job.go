package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// EngineMode controls which fetch engine a job is allowed to use.
// "auto" lets the orchestrator walk the escalation ladder; a forced
// mode pins the run to a single engine and disables escalation.
type EngineMode string

const (
	EngineModeAuto     EngineMode = "auto"
	EngineModeHTTP     EngineMode = "http"
	EngineModeBrowser  EngineMode = "browser"
	EngineModeProvider EngineMode = "provider"
)

// IsForced returns true when the mode pins a single engine
func (m EngineMode) IsForced() bool {
	return m != "" && m != EngineModeAuto
}

// CrawlMode selects between extracting one item from the start URL and
// walking an item list with pagination
type CrawlMode string

const (
	CrawlModeSingle CrawlMode = "single"
	CrawlModeList   CrawlMode = "list"
)

// IsList returns true when the job walks an item list
func (m CrawlMode) IsList() bool {
	return m == CrawlModeList
}

// ListConfig drives list-mode crawling: the item selector scopes the
// field selectors to one node per item, the pagination selector names
// the next-page link, and the caps bound the walk.
type ListConfig struct {
	ItemSelector       string `json:"item_selector" validate:"required"`
	PaginationSelector string `json:"pagination_selector,omitempty"`
	MaxPages           int    `json:"max_pages,omitempty"`
	MaxItems           int    `json:"max_items,omitempty"`
}

// SelectorSpec describes how a single value is pulled out of a page.
// Text is normalize-spaced unless Attr names an attribute; Regex is
// applied as a post-filter (first capture group wins when present);
// All switches the selector into list mode.
type SelectorSpec struct {
	CSS   string `json:"css"`
	Attr  string `json:"attr,omitempty"`
	All   bool   `json:"all,omitempty"`
	Regex string `json:"regex,omitempty"`
}

// BrowserProfile pins a stable fingerprint for the browser engine
type BrowserProfile struct {
	UserAgent string `json:"user_agent,omitempty"`
	Viewport  string `json:"viewport,omitempty"` // "1366x768"
	Locale    string `json:"locale,omitempty"`
}

// Job is a reusable scrape definition targeting one start URL
type Job struct {
	ID             string                  `json:"id" badgerhold:"key"`
	Name           string                  `json:"name" validate:"required"`
	StartURL       string                  `json:"start_url" validate:"required,url"`
	Domain         string                  `json:"domain"` // Derived from StartURL
	RequiresAuth   bool                    `json:"requires_auth"`
	EngineMode     EngineMode              `json:"engine_mode" validate:"omitempty,oneof=auto http browser provider"`
	CrawlMode      CrawlMode               `json:"crawl_mode" validate:"omitempty,oneof=single list"`
	ListConfig     *ListConfig             `json:"list_config,omitempty"`
	BrowserProfile *BrowserProfile         `json:"browser_profile,omitempty"`
	MaxAttempts    int                     `json:"max_attempts"`
	FieldMapID     string                  `json:"field_map_id,omitempty"`
	Selectors      map[string]SelectorSpec `json:"selectors,omitempty"`
	Proxy          string                  `json:"proxy,omitempty"` // Session pool key, empty means "default"
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// DeriveDomain populates Domain from StartURL
func (j *Job) DeriveDomain() error {
	u, err := url.Parse(j.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL %q: %w", j.StartURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("start URL %q has no host", j.StartURL)
	}
	j.Domain = host
	return nil
}

// ToJSON serializes the job to JSON
func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return string(data), nil
}
