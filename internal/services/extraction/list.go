package extraction

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tendril/internal/models"
)

// ExtractList runs the selector map once per item node matched by
// itemSelector, in document order. Field selectors are scoped inside
// each item node so sibling items never bleed into each other. Items
// that match no selector at all are dropped; maxItems <= 0 means no
// cap.
func ExtractList(html, itemSelector string, selectors map[string]models.SelectorSpec, maxItems int) ([]map[string]any, error) {
	if itemSelector == "" {
		return nil, fmt.Errorf("list extraction requires an item selector")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	var items []map[string]any
	var extractErr error
	doc.Find(itemSelector).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if maxItems > 0 && len(items) >= maxItems {
			return false
		}
		item, err := extractItem(node, selectors)
		if err != nil {
			extractErr = err
			return false
		}
		if len(item) > 0 {
			items = append(items, item)
		}
		return true
	})

	return items, extractErr
}

// NextPageURL finds the pagination link and resolves its href against
// the current page URL. Returns "" when there is no next page.
func NextPageURL(html, pageURL, paginationSelector string) (string, error) {
	if paginationSelector == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}

	href, exists := doc.Find(paginationSelector).First().Attr("href")
	if !exists {
		return "", nil
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", pageURL, err)
	}
	next, err := base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid pagination href %q: %w", href, err)
	}
	return next.String(), nil
}
