package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/tendril/internal/services/fields"
)

// Source names for alternate extraction channels
const (
	SourceJSONLD   = "jsonld"
	SourceMeta     = "meta"
	SourceNextData = "nextdata"
)

// jsonldFieldMap maps schema.org property names to canonical field names.
// Ordered so `name` beats `headline` when a node carries both.
var jsonldFieldMap = []struct {
	prop  string
	field string
}{
	{"name", "title"},
	{"headline", "title"},
	{"description", "description"},
	{"image", "image"},
	{"url", "url"},
	{"datePublished", "date"},
}

// metaFieldMap maps meta property/name attributes to canonical field names
var metaFieldMap = map[string]string{
	"og:title":               "title",
	"og:description":         "description",
	"og:image":               "image",
	"og:url":                 "url",
	"twitter:title":          "title",
	"twitter:description":    "description",
	"twitter:image":          "image",
	"description":            "description",
	"article:published_time": "date",
	"product:price:amount":   "price",
}

// CollectSources gathers alternate values for canonical fields from
// structured data embedded in the page: JSON-LD blocks, Open Graph and
// standard meta tags, and Next.js page props. Each channel contributes at
// most one value per field so a page repeating itself cannot fabricate a
// consensus on its own.
func CollectSources(html string) map[string][]fields.SourceValue {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	collected := make(map[string][]fields.SourceValue)
	add := func(field, source, raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		for _, existing := range collected[field] {
			if existing.Source == source {
				return
			}
		}
		collected[field] = append(collected[field], fields.SourceValue{Source: source, Raw: raw})
	}

	collectJSONLD(doc, add)
	collectMeta(doc, add)
	collectNextData(doc, add)

	if len(collected) == 0 {
		return nil
	}
	return collected
}

func collectJSONLD(doc *goquery.Document, add func(field, source, raw string)) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}

		for _, node := range flattenJSONLD(payload) {
			for _, m := range jsonldFieldMap {
				if value := stringProp(node, m.prop); value != "" {
					add(m.field, SourceJSONLD, value)
				}
			}
			// Product offers carry the price one level down
			if offers, ok := node["offers"].(map[string]any); ok {
				if price := stringProp(offers, "price"); price != "" {
					add("price", SourceJSONLD, price)
				}
			}
		}
	})
}

// flattenJSONLD unwraps top-level arrays and @graph containers
func flattenJSONLD(payload any) []map[string]any {
	var nodes []map[string]any
	switch v := payload.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, entry := range graph {
				if node, ok := entry.(map[string]any); ok {
					nodes = append(nodes, node)
				}
			}
			return nodes
		}
		nodes = append(nodes, v)
	case []any:
		for _, entry := range v {
			if node, ok := entry.(map[string]any); ok {
				nodes = append(nodes, node)
			}
		}
	}
	return nodes
}

func stringProp(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return v
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func collectMeta(doc *goquery.Document, add func(field, source, raw string)) {
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		key, _ := sel.Attr("property")
		if key == "" {
			key, _ = sel.Attr("name")
		}
		field, ok := metaFieldMap[strings.ToLower(key)]
		if !ok {
			return
		}
		content, _ := sel.Attr("content")
		add(field, SourceMeta, content)
	})
}

// collectNextData reads string and numeric page props out of the Next.js
// bootstrap blob
func collectNextData(doc *goquery.Document, add func(field, source, raw string)) {
	script := doc.Find(`script#__NEXT_DATA__`).First()
	if script.Length() == 0 {
		return
	}

	var payload struct {
		Props struct {
			PageProps map[string]any `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(script.Text()), &payload); err != nil {
		return
	}

	for key, value := range payload.Props.PageProps {
		field := strings.ToLower(key)
		for _, m := range jsonldFieldMap {
			if m.prop == key {
				field = m.field
				break
			}
		}
		switch v := value.(type) {
		case string:
			add(field, SourceNextData, v)
		case float64:
			add(field, SourceNextData, strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), "."))
		}
	}
}
