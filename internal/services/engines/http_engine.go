package engines

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/gocolly/colly/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
)

// contextAwareTransport threads context cancellation into collector requests
type contextAwareTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.ctx.Done():
		return nil, t.ctx.Err()
	default:
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// HTTPEngine is the cheapest ladder tier: a plain HTTP fetch through a
// Colly collector, no JavaScript execution
type HTTPEngine struct {
	config  *common.ScraperConfig
	limiter *domainLimiter
	logger  arbor.ILogger
}

// NewHTTPEngine creates the HTTP engine adapter
func NewHTTPEngine(config *common.ScraperConfig, logger arbor.ILogger) *HTTPEngine {
	return &HTTPEngine{
		config:  config,
		limiter: newDomainLimiter(config.RequestDelay),
		logger:  logger,
	}
}

// Name returns the ladder tier served by this adapter
func (e *HTTPEngine) Name() models.Engine {
	return models.EngineHTTP
}

// Fetch retrieves the URL and extracts items with the request selectors,
// walking pagination when the request is in list mode. Block statuses
// are returned as results, not errors; the caller decides what a 403
// means. Transport failures surface as errors.
func (e *HTTPEngine) Fetch(ctx context.Context, req *interfaces.FetchRequest) (*interfaces.FetchResult, error) {
	return runCrawl(ctx, req, func(ctx context.Context, pageURL string) (int, string, error) {
		return e.fetchPage(ctx, req, pageURL)
	}, e.logger)
}

// fetchPage retrieves one page through a fresh Colly collector
func (e *HTTPEngine) fetchPage(ctx context.Context, req *interfaces.FetchRequest, pageURL string) (int, string, error) {
	target, err := url.Parse(pageURL)
	if err != nil {
		return 0, "", fmt.Errorf("invalid fetch URL %q: %w", pageURL, err)
	}
	if err := e.limiter.Wait(ctx, target.Hostname()); err != nil {
		return 0, "", err
	}

	c := colly.NewCollector(
		colly.UserAgent(e.config.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	c.MaxBodySize = e.config.MaxBodySize
	// Block pages are results here, not errors; keep their bodies
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(e.config.HTTPTimeout)
	c.WithTransport(&contextAwareTransport{base: http.DefaultTransport, ctx: ctx})

	if req.Session != nil && len(req.Session.Cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(req.Session.Cookies))
		for _, ck := range req.Session.Cookies {
			cookies = append(cookies, &http.Cookie{
				Name:   ck.Name,
				Value:  ck.Value,
				Domain: ck.Domain,
				Path:   ck.Path,
			})
		}
		if err := c.SetCookies(pageURL, cookies); err != nil {
			e.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to attach session cookies")
		}
	}

	var status int
	var html string
	var transportErr error
	var gotResponse atomic.Bool

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnResponse(func(r *colly.Response) {
		gotResponse.Store(true)
		status = r.StatusCode
		html = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			// The server answered; a block status is a result
			gotResponse.Store(true)
			status = r.StatusCode
			html = string(r.Body)
			return
		}
		transportErr = err
	})

	if err := c.Visit(pageURL); err != nil && !gotResponse.Load() {
		if transportErr == nil {
			transportErr = err
		}
	}
	c.Wait()

	if ctx.Err() != nil {
		return 0, "", ctx.Err()
	}
	if !gotResponse.Load() {
		if transportErr == nil {
			transportErr = fmt.Errorf("no response from %s", pageURL)
		}
		return 0, "", transportErr
	}

	e.logger.Debug().
		Str("url", pageURL).
		Int("status", status).
		Msg("HTTP fetch complete")

	return status, html, nil
}
