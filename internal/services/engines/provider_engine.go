package engines

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
)

const providerSuccessAlpha = 0.1

// providerClient fetches a page through one third-party unblocker API
type providerClient interface {
	name() string
	fetch(ctx context.Context, client *http.Client, apiKey, target string) (int, string, error)
}

// ProviderEngine is the top ladder tier: commercial unblocker APIs that
// solve challenges on their side. Providers are ranked by a success EMA
// seeded from the configured preference order; a provider without an API
// key is never considered.
type ProviderEngine struct {
	config  *common.ProviderConfig
	client  *http.Client
	logger  arbor.ILogger
	mu      sync.Mutex
	scores  map[string]float64
	clients []providerClient
}

// NewProviderEngine creates the provider engine adapter
func NewProviderEngine(config *common.ProviderConfig, logger arbor.ILogger) *ProviderEngine {
	e := &ProviderEngine{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
		scores: make(map[string]float64),
		clients: []providerClient{
			&scrapingbeeClient{},
			&zyteClient{},
			&brightdataClient{},
		},
	}
	for _, name := range config.Preference {
		e.scores[name] = 1.0
	}
	return e
}

// Name returns the ladder tier served by this adapter
func (e *ProviderEngine) Name() models.Engine {
	return models.EngineProvider
}

// Available reports whether at least one provider has an API key
func (e *ProviderEngine) Available() bool {
	for _, c := range e.clients {
		if e.config.APIKeys[c.name()] != "" {
			return true
		}
	}
	return false
}

// Fetch routes the request through the ranked providers, walking
// pagination when the request is in list mode
func (e *ProviderEngine) Fetch(ctx context.Context, req *interfaces.FetchRequest) (*interfaces.FetchResult, error) {
	return runCrawl(ctx, req, e.fetchPage, e.logger)
}

// fetchPage retrieves one page through the best-scoring configured
// provider, falling through to the next on failure
func (e *ProviderEngine) fetchPage(ctx context.Context, pageURL string) (int, string, error) {
	ranked := e.rankedClients()
	if len(ranked) == 0 {
		return 0, "", fmt.Errorf("no fetch provider is configured")
	}

	var lastErr error
	for _, c := range ranked {
		apiKey := e.config.APIKeys[c.name()]
		status, html, err := c.fetch(ctx, e.client, apiKey, pageURL)
		if err != nil {
			e.recordOutcome(c.name(), false)
			lastErr = fmt.Errorf("provider %s: %w", c.name(), err)
			e.logger.Warn().Err(err).Str("provider", c.name()).Msg("Provider fetch failed")
			continue
		}

		e.recordOutcome(c.name(), true)
		e.logger.Debug().
			Str("url", pageURL).
			Str("provider", c.name()).
			Int("status", status).
			Msg("Provider fetch complete")
		return status, html, nil
	}

	return 0, "", lastErr
}

// rankedClients returns keyed providers ordered by success score, with the
// configured preference order breaking ties
func (e *ProviderEngine) rankedClients() []providerClient {
	e.mu.Lock()
	defer e.mu.Unlock()

	prefIndex := make(map[string]int, len(e.config.Preference))
	for i, name := range e.config.Preference {
		prefIndex[name] = i
	}

	var keyed []providerClient
	for _, c := range e.clients {
		if e.config.APIKeys[c.name()] != "" {
			keyed = append(keyed, c)
		}
	}

	for i := 1; i < len(keyed); i++ {
		for j := i; j > 0; j-- {
			a, b := keyed[j-1], keyed[j]
			scoreA, scoreB := e.scores[a.name()], e.scores[b.name()]
			if scoreB > scoreA || (scoreB == scoreA && prefIndex[b.name()] < prefIndex[a.name()]) {
				keyed[j-1], keyed[j] = b, a
			} else {
				break
			}
		}
	}
	return keyed
}

func (e *ProviderEngine) recordOutcome(name string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	prev, ok := e.scores[name]
	if !ok {
		prev = 1.0
	}
	e.scores[name] = prev*(1-providerSuccessAlpha) + outcome*providerSuccessAlpha
}

// scrapingbeeClient calls the ScrapingBee HTML API
type scrapingbeeClient struct{}

func (c *scrapingbeeClient) name() string { return "scrapingbee" }

func (c *scrapingbeeClient) fetch(ctx context.Context, client *http.Client, apiKey, target string) (int, string, error) {
	endpoint := "https://app.scrapingbee.com/api/v1/"
	params := url.Values{}
	params.Set("api_key", apiKey)
	params.Set("url", target)
	params.Set("render_js", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	if resp.StatusCode >= 500 {
		return 0, "", fmt.Errorf("scrapingbee returned %d", resp.StatusCode)
	}
	return resp.StatusCode, string(body), nil
}

// zyteClient calls the Zyte extract API
type zyteClient struct{}

func (c *zyteClient) name() string { return "zyte" }

func (c *zyteClient) fetch(ctx context.Context, client *http.Client, apiKey, target string) (int, string, error) {
	payload, err := json.Marshal(map[string]any{
		"url":              target,
		"httpResponseBody": true,
	})
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.zyte.com/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.SetBasicAuth(apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("zyte returned %d", resp.StatusCode)
	}

	var out struct {
		StatusCode       int    `json:"statusCode"`
		HTTPResponseBody string `json:"httpResponseBody"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", fmt.Errorf("failed to decode zyte response: %w", err)
	}

	html, err := base64.StdEncoding.DecodeString(out.HTTPResponseBody)
	if err != nil {
		return 0, "", fmt.Errorf("failed to decode zyte body: %w", err)
	}

	status := out.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return status, string(html), nil
}

// brightdataClient calls the Bright Data unblocker request API
type brightdataClient struct{}

func (c *brightdataClient) name() string { return "brightdata" }

func (c *brightdataClient) fetch(ctx context.Context, client *http.Client, apiKey, target string) (int, string, error) {
	payload, err := json.Marshal(map[string]any{
		"zone":   "web_unlocker",
		"url":    target,
		"format": "raw",
	})
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.brightdata.com/request", bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	if resp.StatusCode >= 400 {
		return 0, "", fmt.Errorf("brightdata returned %d", resp.StatusCode)
	}
	return resp.StatusCode, string(body), nil
}
