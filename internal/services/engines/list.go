package engines

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/services/extraction"
)

// List crawls stop at these bounds when the job config leaves them unset
const (
	defaultListMaxPages = 5
	defaultListMaxItems = 100
)

// pageFetcher retrieves one page and returns its status and raw HTML.
// Each engine adapter supplies its own transport behind this signature
// so the crawl loop is shared across tiers.
type pageFetcher func(ctx context.Context, pageURL string) (int, string, error)

// runCrawl dispatches between single-item and list crawls. Single mode
// extracts one item from the start URL. List mode scopes the field
// selectors inside each item node and follows the pagination link until
// a page, item, or dead-end bound is hit. The result's status and HTML
// always come from the first page, which is what signal detection
// inspects.
func runCrawl(ctx context.Context, req *interfaces.FetchRequest, fetch pageFetcher, logger arbor.ILogger) (*interfaces.FetchResult, error) {
	status, html, err := fetch(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	result := &interfaces.FetchResult{Status: status, HTML: html}

	if !req.Mode.IsList() || req.List == nil {
		if html != "" && len(req.Selectors) > 0 {
			items, err := extraction.Extract(html, req.Selectors)
			if err != nil {
				logger.Warn().Err(err).Str("url", req.URL).Msg("Selector extraction failed")
			} else {
				result.Items = items
			}
		}
		return result, nil
	}

	maxPages := req.List.MaxPages
	if maxPages <= 0 {
		maxPages = defaultListMaxPages
	}
	maxItems := req.List.MaxItems
	if maxItems <= 0 {
		maxItems = defaultListMaxItems
	}

	pageURL := req.URL
	visited := map[string]bool{pageURL: true}
	for page := 1; ; page++ {
		items, err := extraction.ExtractList(html, req.List.ItemSelector, req.Selectors, maxItems-len(result.Items))
		if err != nil {
			logger.Warn().Err(err).Str("url", pageURL).Msg("Selector extraction failed")
		} else {
			result.Items = append(result.Items, items...)
		}

		if len(result.Items) >= maxItems || page >= maxPages {
			break
		}
		next, err := extraction.NextPageURL(html, pageURL, req.List.PaginationSelector)
		if err != nil {
			logger.Warn().Err(err).Str("url", pageURL).Msg("Pagination link resolution failed")
			break
		}
		if next == "" || visited[next] {
			break
		}
		visited[next] = true

		_, html, err = fetch(ctx, next)
		if err != nil {
			// Keep what the earlier pages yielded
			logger.Warn().Err(err).Str("url", next).Int("page", page+1).Msg("Pagination fetch failed")
			break
		}
		pageURL = next
	}

	logger.Debug().
		Str("url", req.URL).
		Int("pages", len(visited)).
		Int("items", len(result.Items)).
		Msg("List crawl complete")
	return result, nil
}
