package interfaces

import (
	"context"

	"github.com/ternarybob/tendril/internal/models"
)

// FetchRequest describes one fetch through an engine adapter. Mode
// "list" makes the adapter walk pagination per List; single mode
// extracts one item from URL.
type FetchRequest struct {
	URL       string
	Mode      models.CrawlMode
	List      *models.ListConfig
	Selectors map[string]models.SelectorSpec
	Session   *models.Session
	Profile   *models.BrowserProfile
	Region    string
}

// FetchResult is the uniform engine adapter output.
// Items hold selector-extracted values keyed by field name; HTML is the
// raw page for signal extraction and snapshots; Status is the HTTP
// status observed (0 when transport failed).
type FetchResult struct {
	Items  []map[string]any
	HTML   string
	Status int
}

// FetchEngine is the adapter contract all engine tiers implement
type FetchEngine interface {
	// Name returns the engine tier this adapter serves
	Name() models.Engine

	// Fetch retrieves the URL and extracts items per the request selectors
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}
