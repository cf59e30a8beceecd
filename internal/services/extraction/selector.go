package extraction

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tendril/internal/models"
)

var (
	regexCacheMu sync.RWMutex
	regexCache   = make(map[string]*regexp.Regexp)
)

func compiledRegex(pattern string) (*regexp.Regexp, error) {
	regexCacheMu.RLock()
	re, ok := regexCache[pattern]
	regexCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid selector regex %q: %w", pattern, err)
	}

	regexCacheMu.Lock()
	regexCache[pattern] = re
	regexCacheMu.Unlock()
	return re, nil
}

// Extract runs a selector map against page HTML and returns the extracted
// items. A selector in list mode contributes a string slice; otherwise the
// first match wins. The result is empty when no selector matched anything,
// which callers treat as an extraction failure.
func Extract(html string, selectors map[string]models.SelectorSpec) ([]map[string]any, error) {
	if len(selectors) == 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	item, err := extractItem(doc.Selection, selectors)
	if err != nil {
		return nil, err
	}
	if len(item) == 0 {
		return nil, nil
	}
	return []map[string]any{item}, nil
}

// extractItem runs the selector map scoped to one root node
func extractItem(root *goquery.Selection, selectors map[string]models.SelectorSpec) (map[string]any, error) {
	item := make(map[string]any)
	for name, spec := range selectors {
		if spec.CSS == "" {
			continue
		}

		if spec.All {
			values, err := selectAll(root, spec)
			if err != nil {
				return nil, err
			}
			if len(values) > 0 {
				item[name] = values
			}
			continue
		}

		value, found, err := selectFirst(root, spec)
		if err != nil {
			return nil, err
		}
		if found {
			item[name] = value
		}
	}
	return item, nil
}

func selectFirst(root *goquery.Selection, spec models.SelectorSpec) (string, bool, error) {
	var value string
	var found bool
	var filterErr error

	root.Find(spec.CSS).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := nodeValue(sel, spec.Attr)
		if !ok {
			return true
		}
		filtered, ok, err := applyRegex(raw, spec.Regex)
		if err != nil {
			filterErr = err
			return false
		}
		if !ok {
			return true
		}
		value = filtered
		found = true
		return false
	})

	return value, found, filterErr
}

func selectAll(root *goquery.Selection, spec models.SelectorSpec) ([]string, error) {
	var values []string
	var filterErr error

	root.Find(spec.CSS).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw, ok := nodeValue(sel, spec.Attr)
		if !ok {
			return true
		}
		filtered, ok, err := applyRegex(raw, spec.Regex)
		if err != nil {
			filterErr = err
			return false
		}
		if ok {
			values = append(values, filtered)
		}
		return true
	})

	return values, filterErr
}

// nodeValue reads either an attribute or the normalize-spaced text
func nodeValue(sel *goquery.Selection, attr string) (string, bool) {
	if attr != "" {
		value, exists := sel.Attr(attr)
		if !exists {
			return "", false
		}
		return strings.TrimSpace(value), true
	}

	text := normalizeSpace(sel.Text())
	if text == "" {
		return "", false
	}
	return text, true
}

// applyRegex post-filters a value. The first capture group wins when the
// pattern has one; a non-matching value is dropped, not errored.
func applyRegex(value, pattern string) (string, bool, error) {
	if pattern == "" {
		return value, true, nil
	}

	re, err := compiledRegex(pattern)
	if err != nil {
		return "", false, err
	}

	match := re.FindStringSubmatch(value)
	if match == nil {
		return "", false, nil
	}
	if len(match) > 1 {
		return strings.TrimSpace(match[1]), true, nil
	}
	return strings.TrimSpace(match[0]), true, nil
}

var spaceRun = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
