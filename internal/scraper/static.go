package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

const defaultPageTimeout = 30 * time.Second

// lazySrcAttrs are attributes lazy-loading libraries keep the real source in.
var lazySrcAttrs = []string{"data-src", "data-lazy-src", "data-original"}

// StaticCollector downloads the page HTML and reads its img elements
// without running scripts.
type StaticCollector struct {
	client *resty.Client
}

// NewStaticCollector creates a collector with a default HTTP client.
func NewStaticCollector() *StaticCollector {
	return &StaticCollector{
		client: resty.New().
			SetTimeout(defaultPageTimeout).
			SetHeader("Accept", "text/html,application/xhtml+xml"),
	}
}

// WithTimeout bounds loading one page.
func (c *StaticCollector) WithTimeout(timeout time.Duration) *StaticCollector {
	c.client.SetTimeout(timeout)
	return c
}

// Collect implements Collector.
func (c *StaticCollector) Collect(ctx context.Context, pageURL string) ([]string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to load page: status %d", resp.StatusCode())
	}

	reader, err := charset.NewReader(body, resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	base := resp.RawResponse.Request.URL
	urls := ExtractImageURLs(doc, base)
	log.Debug().Str("page", pageURL).Int("images", len(urls)).Msg("collected image urls")
	return urls, nil
}

// ExtractImageURLs resolves every img element of doc to its effective
// source against base (or the document's <base href>) and filters the
// result with FilterImageURLs.
func ExtractImageURLs(doc *goquery.Document, base *url.URL) []string {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	var candidates []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := effectiveSource(s)
		if src == "" {
			return
		}
		candidates = append(candidates, resolve(base, src))
	})
	return FilterImageURLs(candidates)
}

// effectiveSource approximates a browser's currentSrc: the best srcset
// candidate wins over src, which wins over lazy-load attributes.
func effectiveSource(s *goquery.Selection) string {
	if srcset, ok := s.Attr("srcset"); ok {
		if best := BestSrcsetCandidate(srcset); best != "" {
			return best
		}
	}
	if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
		return src
	}
	for _, attr := range lazySrcAttrs {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// BestSrcsetCandidate returns the URL with the largest width or density
// descriptor. Candidates without a descriptor count as 1x.
func BestSrcsetCandidate(srcset string) string {
	var best string
	bestScore := -1.0
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		score := 1.0
		if len(fields) > 1 {
			score = descriptorScore(fields[1])
		}
		if score > bestScore {
			best, bestScore = fields[0], score
		}
	}
	return best
}

// descriptorScore converts "640w" or "2x" to a comparable number. A srcset
// never mixes the two kinds, so comparing the raw values is enough.
func descriptorScore(d string) float64 {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return 1
	}
	unit := d[len(d)-1]
	if unit != 'w' && unit != 'x' {
		return 0
	}
	n, err := strconv.ParseFloat(d[:len(d)-1], 64)
	if err != nil {
		return 0
	}
	return n
}
