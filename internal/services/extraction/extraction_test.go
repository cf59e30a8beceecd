package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tendril/internal/models"
)

const productPage = `<html><head>
<title>Shop</title>
<script type="application/ld+json">
{"@type":"Product","name":"Acme Widget","description":"A fine widget.",
 "offers":{"@type":"Offer","price":"19.99","priceCurrency":"USD"}}
</script>
<meta property="og:title" content="Acme Widget"/>
<meta property="og:description" content="A fine widget for all needs."/>
<meta name="description" content="Widget product page"/>
</head><body>
<h1 class="product-name">  Acme
  Widget </h1>
<span class="price" data-amount="19.99">$19.99</span>
<ul class="tags"><li>home</li><li>garden</li><li></li></ul>
<a class="sku" href="/p/SKU-12345">details</a>
</body></html>`

func TestExtractText(t *testing.T) {
	items, err := Extract(productPage, map[string]models.SelectorSpec{
		"title": {CSS: "h1.product-name"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Acme Widget", items[0]["title"])
}

func TestExtractAttr(t *testing.T) {
	items, err := Extract(productPage, map[string]models.SelectorSpec{
		"amount": {CSS: "span.price", Attr: "data-amount"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "19.99", items[0]["amount"])
}

func TestExtractListMode(t *testing.T) {
	items, err := Extract(productPage, map[string]models.SelectorSpec{
		"tags": {CSS: "ul.tags li", All: true},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"home", "garden"}, items[0]["tags"])
}

func TestExtractRegexCaptureGroup(t *testing.T) {
	items, err := Extract(productPage, map[string]models.SelectorSpec{
		"sku": {CSS: "a.sku", Attr: "href", Regex: `/p/(SKU-\d+)`},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "SKU-12345", items[0]["sku"])
}

func TestExtractRegexNoMatchDropsValue(t *testing.T) {
	items, err := Extract(productPage, map[string]models.SelectorSpec{
		"sku": {CSS: "a.sku", Attr: "href", Regex: `ORDER-\d+`},
	})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractInvalidRegex(t *testing.T) {
	_, err := Extract(productPage, map[string]models.SelectorSpec{
		"sku": {CSS: "a.sku", Regex: `(`},
	})
	assert.Error(t, err)
}

func TestExtractNothingMatched(t *testing.T) {
	items, err := Extract(productPage, map[string]models.SelectorSpec{
		"missing": {CSS: "div.does-not-exist"},
	})
	require.NoError(t, err)
	assert.Empty(t, items)
}

const listingPage = `<html><body>
<div class="product-card">
  <h2 class="name">Widget A</h2><span class="price">$10</span>
</div>
<div class="product-card">
  <h2 class="name">Widget B</h2><span class="price">$20</span>
</div>
<div class="product-card">
  <h2 class="name">Widget C</h2><span class="price">$30</span>
</div>
<div class="banner"><h2 class="name">Not A Product</h2></div>
<a class="next" href="/products?page=2">Next</a>
</body></html>`

func TestExtractListScopesFieldsPerItem(t *testing.T) {
	items, err := ExtractList(listingPage, "div.product-card", map[string]models.SelectorSpec{
		"name":  {CSS: "h2.name"},
		"price": {CSS: "span.price"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Document order, each item seeing only its own nodes
	assert.Equal(t, "Widget A", items[0]["name"])
	assert.Equal(t, "$10", items[0]["price"])
	assert.Equal(t, "Widget C", items[2]["name"])
	assert.Equal(t, "$30", items[2]["price"])
}

func TestExtractListMaxItemsCap(t *testing.T) {
	items, err := ExtractList(listingPage, "div.product-card", map[string]models.SelectorSpec{
		"name": {CSS: "h2.name"},
	}, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Widget A", items[0]["name"])
	assert.Equal(t, "Widget B", items[1]["name"])
}

func TestExtractListDropsEmptyItems(t *testing.T) {
	items, err := ExtractList(listingPage, "div.product-card", map[string]models.SelectorSpec{
		"sku": {CSS: "span.sku"},
	}, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtractListRequiresItemSelector(t *testing.T) {
	_, err := ExtractList(listingPage, "", map[string]models.SelectorSpec{
		"name": {CSS: "h2.name"},
	}, 0)
	assert.Error(t, err)
}

func TestNextPageURLResolvesRelativeHref(t *testing.T) {
	next, err := NextPageURL(listingPage, "https://shop.example.com/products", "a.next")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/products?page=2", next)
}

func TestNextPageURLAbsentLink(t *testing.T) {
	next, err := NextPageURL(listingPage, "https://shop.example.com/products", "a.more")
	require.NoError(t, err)
	assert.Equal(t, "", next)

	// No selector configured means no pagination
	next, err = NextPageURL(listingPage, "https://shop.example.com/products", "")
	require.NoError(t, err)
	assert.Equal(t, "", next)
}

func TestNextPageURLSkipsDeadHrefs(t *testing.T) {
	page := `<html><body>
<a class="anchor" href="#top">Next</a>
<a class="script" href="javascript:void(0)">Next</a>
</body></html>`

	next, err := NextPageURL(page, "https://example.com/list", "a.anchor")
	require.NoError(t, err)
	assert.Equal(t, "", next)

	next, err = NextPageURL(page, "https://example.com/list", "a.script")
	require.NoError(t, err)
	assert.Equal(t, "", next)
}

func TestCollectSourcesJSONLDAndMeta(t *testing.T) {
	sources := CollectSources(productPage)
	require.NotNil(t, sources)

	titles := sources["title"]
	require.Len(t, titles, 2)
	bySource := map[string]string{}
	for _, sv := range titles {
		bySource[sv.Source] = sv.Raw
	}
	assert.Equal(t, "Acme Widget", bySource[SourceJSONLD])
	assert.Equal(t, "Acme Widget", bySource[SourceMeta])

	prices := sources["price"]
	require.Len(t, prices, 1)
	assert.Equal(t, "19.99", prices[0].Raw)

	// og:description wins the meta slot; the standard tag cannot add a
	// second value for the same channel
	descs := sources["description"]
	metaCount := 0
	for _, sv := range descs {
		if sv.Source == SourceMeta {
			metaCount++
		}
	}
	assert.Equal(t, 1, metaCount)
}

func TestCollectSourcesNextData(t *testing.T) {
	page := `<html><head>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"title":"Widget From Props","price":19.99,"internal":{"nested":true}}}}
</script>
</head><body></body></html>`

	sources := CollectSources(page)
	require.NotNil(t, sources)

	require.Len(t, sources["title"], 1)
	assert.Equal(t, SourceNextData, sources["title"][0].Source)
	assert.Equal(t, "Widget From Props", sources["title"][0].Raw)

	require.Len(t, sources["price"], 1)
	assert.Equal(t, "19.99", sources["price"][0].Raw)
}

func TestCollectSourcesGraphContainer(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
{"@graph":[{"@type":"Article","headline":"Deep Dive","datePublished":"2024-03-05"}]}
</script></head><body></body></html>`

	sources := CollectSources(page)
	require.NotNil(t, sources)
	assert.Equal(t, "Deep Dive", sources["title"][0].Raw)
	assert.Equal(t, "2024-03-05", sources["date"][0].Raw)
}

func TestCollectSourcesEmptyPage(t *testing.T) {
	assert.Nil(t, CollectSources("<html><body><p>plain</p></body></html>"))
}
