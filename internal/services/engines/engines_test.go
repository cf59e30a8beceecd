package engines

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
)

func testScraperConfig() *common.ScraperConfig {
	return &common.ScraperConfig{
		UserAgent:    "tendril-test/1.0",
		HTTPTimeout:  5 * time.Second,
		RequestDelay: time.Millisecond,
		MaxBodySize:  1024 * 1024,
	}
}

func TestHTTPEngineFetch(t *testing.T) {
	var gotCookie, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(`<html><body><h1 class="title">Acme Widget</h1></body></html>`))
	}))
	defer server.Close()

	engine := NewHTTPEngine(testScraperConfig(), arbor.NewLogger())
	assert.Equal(t, models.EngineHTTP, engine.Name())

	result, err := engine.Fetch(context.Background(), &interfaces.FetchRequest{
		URL:       server.URL,
		Selectors: map[string]models.SelectorSpec{"title": {CSS: "h1.title"}},
		Session: &models.Session{
			Cookies: []models.SessionCookie{{Name: "sid", Value: "abc"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Acme Widget", result.Items[0]["title"])
	assert.Equal(t, "tendril-test/1.0", gotUA)
	assert.Equal(t, "abc", gotCookie)
}

func TestHTTPEngineBlockStatusIsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("<html><body>access denied</body></html>"))
	}))
	defer server.Close()

	engine := NewHTTPEngine(testScraperConfig(), arbor.NewLogger())
	result, err := engine.Fetch(context.Background(), &interfaces.FetchRequest{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.Status)
	assert.Contains(t, result.HTML, "access denied")
	assert.Empty(t, result.Items)
}

func TestHTTPEngineTransportError(t *testing.T) {
	engine := NewHTTPEngine(testScraperConfig(), arbor.NewLogger())
	_, err := engine.Fetch(context.Background(), &interfaces.FetchRequest{URL: "http://127.0.0.1:1/"})
	assert.Error(t, err)
}

func TestHTTPEngineContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	engine := NewHTTPEngine(testScraperConfig(), arbor.NewLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := engine.Fetch(ctx, &interfaces.FetchRequest{URL: server.URL})
	assert.Error(t, err)
}

const listPageOne = `<html><body>
<div class="card"><h2 class="name">Widget A</h2></div>
<div class="card"><h2 class="name">Widget B</h2></div>
<a class="next" href="/products?page=2">Next</a>
</body></html>`

const listPageTwo = `<html><body>
<div class="card"><h2 class="name">Widget C</h2></div>
</body></html>`

func listRequest(mutate func(*models.ListConfig)) *interfaces.FetchRequest {
	list := &models.ListConfig{
		ItemSelector:       "div.card",
		PaginationSelector: "a.next",
	}
	if mutate != nil {
		mutate(list)
	}
	return &interfaces.FetchRequest{
		URL:       "https://shop.example.com/products",
		Mode:      models.CrawlModeList,
		List:      list,
		Selectors: map[string]models.SelectorSpec{"name": {CSS: "h2.name"}},
	}
}

func TestRunCrawlListFollowsPagination(t *testing.T) {
	pages := map[string]string{
		"https://shop.example.com/products":        listPageOne,
		"https://shop.example.com/products?page=2": listPageTwo,
	}
	var fetched []string
	fetch := func(_ context.Context, pageURL string) (int, string, error) {
		fetched = append(fetched, pageURL)
		html, ok := pages[pageURL]
		require.True(t, ok, "unexpected fetch %s", pageURL)
		return 200, html, nil
	}

	result, err := runCrawl(context.Background(), listRequest(nil), fetch, arbor.NewLogger())
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "Widget A", result.Items[0]["name"])
	assert.Equal(t, "Widget C", result.Items[2]["name"])

	// Status and HTML stay pinned to the first page
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, listPageOne, result.HTML)
	assert.Equal(t, []string{
		"https://shop.example.com/products",
		"https://shop.example.com/products?page=2",
	}, fetched)
}

func TestRunCrawlListMaxItemsStopsPagination(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, _ string) (int, string, error) {
		calls++
		return 200, listPageOne, nil
	}

	req := listRequest(func(l *models.ListConfig) { l.MaxItems = 2 })
	result, err := runCrawl(context.Background(), req, fetch, arbor.NewLogger())
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 1, calls)
}

func TestRunCrawlListPaginationFailureKeepsItems(t *testing.T) {
	fetch := func(_ context.Context, pageURL string) (int, string, error) {
		if pageURL == "https://shop.example.com/products" {
			return 200, listPageOne, nil
		}
		return 0, "", errors.New("connection reset")
	}

	result, err := runCrawl(context.Background(), listRequest(nil), fetch, arbor.NewLogger())
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 200, result.Status)
}

func TestRunCrawlListVisitedGuard(t *testing.T) {
	// Page two links straight back to page one
	loopingPageTwo := `<html><body>
<div class="card"><h2 class="name">Widget C</h2></div>
<a class="next" href="/products">Back</a>
</body></html>`

	calls := 0
	fetch := func(_ context.Context, pageURL string) (int, string, error) {
		calls++
		if pageURL == "https://shop.example.com/products" {
			return 200, listPageOne, nil
		}
		return 200, loopingPageTwo, nil
	}

	result, err := runCrawl(context.Background(), listRequest(nil), fetch, arbor.NewLogger())
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)
	assert.Equal(t, 2, calls)
}

func TestRunCrawlSingleMode(t *testing.T) {
	fetch := func(_ context.Context, _ string) (int, string, error) {
		return 200, `<html><body><h1 class="title">Acme Widget</h1></body></html>`, nil
	}

	req := &interfaces.FetchRequest{
		URL:       "https://example.com/p/1",
		Selectors: map[string]models.SelectorSpec{"title": {CSS: "h1.title"}},
	}
	result, err := runCrawl(context.Background(), req, fetch, arbor.NewLogger())
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Acme Widget", result.Items[0]["title"])
}

func TestHTTPEngineListCrawl(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery == "page=2" {
			w.Write([]byte(listPageTwo))
			return
		}
		w.Write([]byte(`<html><body>
<div class="card"><h2 class="name">Widget A</h2></div>
<div class="card"><h2 class="name">Widget B</h2></div>
<a class="next" href="` + server.URL + `/products?page=2">Next</a>
</body></html>`))
	}))
	defer server.Close()

	engine := NewHTTPEngine(testScraperConfig(), arbor.NewLogger())
	result, err := engine.Fetch(context.Background(), &interfaces.FetchRequest{
		URL:  server.URL + "/products",
		Mode: models.CrawlModeList,
		List: &models.ListConfig{
			ItemSelector:       "div.card",
			PaginationSelector: "a.next",
		},
		Selectors: map[string]models.SelectorSpec{"name": {CSS: "h2.name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "Widget C", result.Items[2]["name"])
}

func TestDomainLimiterPacesPerDomain(t *testing.T) {
	limiter := newDomainLimiter(50 * time.Millisecond)
	ctx := context.Background()

	// First hit on each domain passes immediately
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "a.com"))
	require.NoError(t, limiter.Wait(ctx, "b.com"))
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	// Second hit on the same domain waits for the delay
	start = time.Now()
	require.NoError(t, limiter.Wait(ctx, "a.com"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestProviderEngineAvailability(t *testing.T) {
	cfg := &common.ProviderConfig{
		Preference: []string{"scrapingbee", "zyte", "brightdata"},
		APIKeys:    map[string]string{},
		Timeout:    time.Second,
	}
	engine := NewProviderEngine(cfg, arbor.NewLogger())
	assert.Equal(t, models.EngineProvider, engine.Name())
	assert.False(t, engine.Available())

	cfg.APIKeys["zyte"] = "key"
	assert.True(t, engine.Available())

	delete(cfg.APIKeys, "zyte")
	_, err := engine.Fetch(context.Background(), &interfaces.FetchRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fetch provider")
}

func TestProviderRankingFollowsScores(t *testing.T) {
	cfg := &common.ProviderConfig{
		Preference: []string{"scrapingbee", "zyte", "brightdata"},
		APIKeys: map[string]string{
			"scrapingbee": "k1",
			"zyte":        "k2",
		},
		Timeout: time.Second,
	}
	engine := NewProviderEngine(cfg, arbor.NewLogger())

	ranked := engine.rankedClients()
	require.Len(t, ranked, 2)
	assert.Equal(t, "scrapingbee", ranked[0].name())

	// Repeated failures sink scrapingbee below zyte
	for i := 0; i < 5; i++ {
		engine.recordOutcome("scrapingbee", false)
	}
	ranked = engine.rankedClients()
	assert.Equal(t, "zyte", ranked[0].name())

	// Recovery is an EMA, not a reset
	engine.recordOutcome("scrapingbee", true)
	ranked = engine.rankedClients()
	assert.Equal(t, "zyte", ranked[0].name())
}

func TestProviderScoreEMA(t *testing.T) {
	cfg := &common.ProviderConfig{
		Preference: []string{"scrapingbee"},
		APIKeys:    map[string]string{"scrapingbee": "k"},
		Timeout:    time.Second,
	}
	engine := NewProviderEngine(cfg, arbor.NewLogger())

	engine.recordOutcome("scrapingbee", false)
	assert.InDelta(t, 0.9, engine.scores["scrapingbee"], 1e-9)

	engine.recordOutcome("scrapingbee", true)
	assert.InDelta(t, 0.91, engine.scores["scrapingbee"], 1e-9)
}

func TestParseViewport(t *testing.T) {
	w, h, ok := parseViewport("1366x768")
	require.True(t, ok)
	assert.Equal(t, int64(1366), w)
	assert.Equal(t, int64(768), h)

	_, _, ok = parseViewport("wide")
	assert.False(t, ok)

	_, _, ok = parseViewport("0x768")
	assert.False(t, ok)
}
