// Package page answers GET_IMAGES by scraping the page named in the message.
package page

import (
	"context"
	"net/url"

	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/raine/page-image-prompts/internal/scraper"
	"github.com/rs/zerolog/log"
)

// NoActiveTabMessage is the reply error when the message does not name a
// usable page.
const NoActiveTabMessage = "Unable to access the active tab."

// Context is the page side of the messaging system.
type Context struct {
	collector scraper.Collector
	router    *messaging.Router
}

// New creates a page context backed by collector.
func New(collector scraper.Collector) *Context {
	c := &Context{collector: collector}
	c.router = messaging.NewRouter(messaging.ContextPage, map[messaging.Kind]messaging.HandlerFunc{
		messaging.KindGetImages: c.handleGetImages,
	})
	return c
}

// Router returns the dispatch table for transports.
func (c *Context) Router() *messaging.Router {
	return c.router
}

// Close stops the router and releases the collector.
func (c *Context) Close() error {
	err := c.router.Close()
	if closer, ok := c.collector.(interface{ Close() }); ok {
		closer.Close()
	}
	return err
}

func (c *Context) handleGetImages(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	u, err := url.Parse(msg.PageURL)
	if msg.PageURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &messaging.Response{OK: false, Error: NoActiveTabMessage}, nil
	}

	imageURLs, err := c.collector.Collect(ctx, msg.PageURL)
	if err != nil {
		log.Warn().Err(err).Str("page", msg.PageURL).Msg("failed to collect images")
		return &messaging.Response{OK: false, Error: err.Error()}, nil
	}

	if imageURLs == nil {
		imageURLs = []string{}
	}
	log.Debug().Str("page", msg.PageURL).Int("images", len(imageURLs)).Msg("collected images")
	return &messaging.Response{OK: true, ImageURLs: imageURLs}, nil
}
