// Package scraper collects the image URLs shown on a web page.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Collector returns the deduplicated HTTP(S) image URLs of a page.
type Collector interface {
	Collect(ctx context.Context, pageURL string) ([]string, error)
}

const (
	KindStatic  = "static"
	KindBrowser = "browser"
)

// New returns the collector registered under kind. A positive timeout
// bounds each page load or render.
func New(kind string, timeout time.Duration) (Collector, error) {
	switch kind {
	case "", KindStatic:
		c := NewStaticCollector()
		if timeout > 0 {
			c.WithTimeout(timeout)
		}
		return c, nil
	case KindBrowser:
		c := NewBrowserCollector()
		if timeout > 0 {
			c.WithTimeout(timeout)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown scraper %q (use %s or %s)", kind, KindStatic, KindBrowser)
	}
}

// FilterImageURLs drops empty and non-HTTP(S) sources and removes
// duplicates, keeping the first occurrence of each URL.
func FilterImageURLs(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if !isHTTPURL(c) {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		urls = append(urls, c)
	}
	return urls
}

func isHTTPURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
