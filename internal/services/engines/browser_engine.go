package engines

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tendril/internal/common"
	"github.com/ternarybob/tendril/internal/interfaces"
	"github.com/ternarybob/tendril/internal/models"
)

// BrowserEngine is the middle ladder tier: a real Chrome rendering the
// page, for sites that assemble their content in JavaScript. The pool is
// started lazily so deployments that never escalate past HTTP do not pay
// for Chrome.
type BrowserEngine struct {
	config   *common.ScraperConfig
	limiter  *domainLimiter
	logger   arbor.ILogger
	poolOnce sync.Once
	pool     *browserPool
	poolErr  error
}

// NewBrowserEngine creates the browser engine adapter
func NewBrowserEngine(config *common.ScraperConfig, logger arbor.ILogger) *BrowserEngine {
	return &BrowserEngine{
		config:  config,
		limiter: newDomainLimiter(config.RequestDelay),
		logger:  logger,
	}
}

// Name returns the ladder tier served by this adapter
func (e *BrowserEngine) Name() models.Engine {
	return models.EngineBrowser
}

func (e *BrowserEngine) ensurePool() (*browserPool, error) {
	e.poolOnce.Do(func() {
		e.pool, e.poolErr = newBrowserPool(browserPoolConfig{
			Size:      e.config.BrowserPoolSize,
			UserAgent: e.config.UserAgent,
			Headless:  e.config.Headless,
		}, e.logger)
	})
	return e.pool, e.poolErr
}

// Fetch navigates Chrome tabs to the URL, applies the job's browser
// profile and session cookies, and extracts items from the rendered
// DOM, walking pagination when the request is in list mode.
// Navigation failures are errors; block statuses are results.
func (e *BrowserEngine) Fetch(ctx context.Context, req *interfaces.FetchRequest) (*interfaces.FetchResult, error) {
	return runCrawl(ctx, req, func(ctx context.Context, pageURL string) (int, string, error) {
		return e.renderPage(ctx, req, pageURL)
	}, e.logger)
}

// renderPage renders one page in a fresh tab and returns its DOM
func (e *BrowserEngine) renderPage(ctx context.Context, req *interfaces.FetchRequest, pageURL string) (int, string, error) {
	target, err := url.Parse(pageURL)
	if err != nil {
		return 0, "", fmt.Errorf("invalid fetch URL %q: %w", pageURL, err)
	}
	if err := e.limiter.Wait(ctx, target.Hostname()); err != nil {
		return 0, "", err
	}

	pool, err := e.ensurePool()
	if err != nil {
		return 0, "", err
	}
	browserCtx, err := pool.Get()
	if err != nil {
		return 0, "", err
	}

	// Fresh tab per fetch; the browser process is shared, tab state is not
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, e.config.BrowserNavTimeout)
	defer navCancel()

	// The caller's cancellation wins over the nav timeout
	go func() {
		select {
		case <-ctx.Done():
			navCancel()
		case <-navCtx.Done():
		}
	}()

	tasks := chromedp.Tasks{network.Enable()}
	tasks = append(tasks, profileTasks(req.Profile)...)
	tasks = append(tasks, sessionCookieTasks(req.Session, target.Hostname())...)
	if err := chromedp.Run(navCtx, tasks); err != nil {
		return 0, "", fmt.Errorf("failed to prepare browser tab: %w", err)
	}

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(pageURL))
	if err != nil {
		return 0, "", fmt.Errorf("navigation failed: %w", err)
	}

	status := 0
	if resp != nil {
		status = int(resp.Status)
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return 0, "", fmt.Errorf("failed to read rendered page: %w", err)
	}

	e.logger.Debug().
		Str("url", pageURL).
		Int("status", status).
		Msg("Browser fetch complete")

	return status, html, nil
}

// Close shuts down the browser pool if it was ever started
func (e *BrowserEngine) Close() {
	if e.pool != nil {
		e.pool.Shutdown()
	}
}

// profileTasks applies a job's pinned browser fingerprint to the tab
func profileTasks(profile *models.BrowserProfile) chromedp.Tasks {
	if profile == nil {
		return nil
	}

	var tasks chromedp.Tasks
	if profile.UserAgent != "" || profile.Locale != "" {
		override := emulation.SetUserAgentOverride(profile.UserAgent)
		if profile.Locale != "" {
			override = override.WithAcceptLanguage(profile.Locale)
		}
		tasks = append(tasks, override)
	}
	if w, h, ok := parseViewport(profile.Viewport); ok {
		tasks = append(tasks, chromedp.EmulateViewport(w, h))
	}
	return tasks
}

// sessionCookieTasks seeds the tab with the session's cookies
func sessionCookieTasks(session *models.Session, host string) chromedp.Tasks {
	if session == nil || len(session.Cookies) == 0 {
		return nil
	}

	var tasks chromedp.Tasks
	for _, ck := range session.Cookies {
		domain := ck.Domain
		if domain == "" {
			domain = host
		}
		path := ck.Path
		if path == "" {
			path = "/"
		}
		tasks = append(tasks, network.SetCookie(ck.Name, ck.Value).
			WithDomain(domain).
			WithPath(path))
	}
	return tasks
}

func parseViewport(viewport string) (int64, int64, bool) {
	parts := strings.SplitN(viewport, "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	h, errH := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
