package engines

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// browserPool keeps a fixed set of warm Chrome contexts and hands them out
// round-robin. Cold-starting Chrome per fetch costs seconds; the ladder
// escalates too often for that.
type browserPool struct {
	mu               sync.Mutex
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	next             int
	logger           arbor.ILogger
}

type browserPoolConfig struct {
	Size      int
	UserAgent string
	Headless  bool
}

func newBrowserPool(cfg browserPoolConfig, logger arbor.ILogger) (*browserPool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}

	pool := &browserPool{logger: logger}
	for i := 0; i < cfg.Size; i++ {
		if err := pool.addInstance(cfg); err != nil {
			if len(pool.browsers) == 0 {
				pool.Shutdown()
				return nil, fmt.Errorf("failed to start any browser instance: %w", err)
			}
			logger.Warn().Err(err).Int("index", i).Msg("Browser instance failed to start")
			break
		}
	}

	logger.Info().Int("instances", len(pool.browsers)).Msg("Browser pool ready")
	return pool, nil
}

func (p *browserPool) addInstance(cfg browserPoolConfig) error {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup probe so a broken Chrome install fails fast
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser startup probe failed: %w", err)
	}

	p.mu.Lock()
	p.browsers = append(p.browsers, browserCtx)
	p.browserCancels = append(p.browserCancels, browserCancel)
	p.allocatorCancels = append(p.allocatorCancels, allocatorCancel)
	p.mu.Unlock()
	return nil
}

// Get returns a pooled browser context round-robin
func (p *browserPool) Get() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.browsers) == 0 {
		return nil, fmt.Errorf("browser pool is empty")
	}
	ctx := p.browsers[p.next%len(p.browsers)]
	p.next++
	return ctx, nil
}

// Shutdown tears down every pooled instance
func (p *browserPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cancel := range p.browserCancels {
		cancel()
	}
	for _, cancel := range p.allocatorCancels {
		cancel()
	}
	p.browsers = nil
	p.browserCancels = nil
	p.allocatorCancels = nil
}
