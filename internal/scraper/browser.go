package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// collectImagesScript mirrors what a content script sees: every image
// element's resolved currentSrc, falling back to its src attribute.
const collectImagesScript = `Array.from(document.images || []).map((img) => img.currentSrc || img.src)`

const defaultRenderTimeout = 25 * time.Second

// BrowserCollector renders the page in headless Chrome so responsive and
// script-inserted images are resolved the way a user's browser sees them.
type BrowserCollector struct {
	allocator context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	settle    time.Duration
}

// NewBrowserCollector starts a headless Chrome allocator. Call Close to
// release it.
func NewBrowserCollector() *BrowserCollector {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserCollector{
		allocator: allocCtx,
		cancel:    cancel,
		timeout:   defaultRenderTimeout,
		settle:    500 * time.Millisecond,
	}
}

// WithTimeout bounds a single page render.
func (b *BrowserCollector) WithTimeout(timeout time.Duration) *BrowserCollector {
	b.timeout = timeout
	return b
}

// Close shuts down the browser allocator.
func (b *BrowserCollector) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Collect implements Collector.
func (b *BrowserCollector) Collect(ctx context.Context, pageURL string) ([]string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, fmt.Errorf("empty page url")
	}

	taskCtx, cancelBrowser := chromedp.NewContext(b.allocator)
	defer cancelBrowser()

	// Bind the browser tab to the caller's context.
	taskCtx, cancel := context.WithCancel(taskCtx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	if b.timeout > 0 {
		var cancelTimeout context.CancelFunc
		taskCtx, cancelTimeout = context.WithTimeout(taskCtx, b.timeout)
		defer cancelTimeout()
	}

	var sources []string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.Evaluate(collectImagesScript, &sources),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	urls := FilterImageURLs(sources)
	log.Debug().Str("page", pageURL).Int("images", len(urls)).Msg("collected rendered image urls")
	return urls, nil
}
