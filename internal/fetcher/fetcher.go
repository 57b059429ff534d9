package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout is the default timeout for image downloads
	DefaultTimeout = 30 * time.Second
	// DefaultMaxSize is the default maximum image size (10MB)
	DefaultMaxSize = 10 * 1024 * 1024

	fallbackMIMEType = "image/png"
)

// Image is a downloaded image ready to be sent to a vision API.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// FetchError reports why an image could not be retrieved or was rejected.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	return e.Reason
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher downloads images without caching and validates their type.
type Fetcher struct {
	client    *resty.Client
	maxSize   int64
	rejectSVG bool
}

// New creates a Fetcher with default settings.
func New() *Fetcher {
	return &Fetcher{
		client:  resty.New().SetTimeout(DefaultTimeout),
		maxSize: DefaultMaxSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	f.client.SetTimeout(timeout)
	return f
}

// WithMaxSize sets a custom maximum image size.
func (f *Fetcher) WithMaxSize(maxSize int64) *Fetcher {
	f.maxSize = maxSize
	return f
}

// WithRejectSVG makes SVG images fail with a FetchError.
func (f *Fetcher) WithRejectSVG(reject bool) *Fetcher {
	f.rejectSVG = reject
	return f
}

// Fetch downloads imageURL. It fails with *FetchError on a non-2xx status,
// a missing or non-image content type, SVG (when rejected), or oversize
// bodies.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) (*Image, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Cache-Control", "no-cache").
		SetHeader("Pragma", "no-cache").
		Get(imageURL)
	if err != nil {
		return nil, &FetchError{URL: imageURL, Reason: fmt.Sprintf("Failed to fetch image: %v", err), Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return nil, &FetchError{
			URL:        imageURL,
			StatusCode: resp.StatusCode(),
			Reason:     fmt.Sprintf("Failed to fetch image: %d", resp.StatusCode()),
		}
	}

	contentType := resp.Header().Get("Content-Type")
	lowered := strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(lowered, "image/") {
		shown := contentType
		if shown == "" {
			shown = "unknown"
		}
		return nil, &FetchError{URL: imageURL, StatusCode: resp.StatusCode(), Reason: "Unsupported content type: " + shown}
	}
	if f.rejectSVG && strings.Contains(lowered, "svg") {
		return nil, errSVG(imageURL, resp.StatusCode())
	}

	if resp.RawResponse != nil && resp.RawResponse.ContentLength > f.maxSize {
		return nil, &FetchError{
			URL:    imageURL,
			Reason: fmt.Sprintf("Image too large: %d bytes exceeds limit of %d bytes", resp.RawResponse.ContentLength, f.maxSize),
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxSize+1))
	if err != nil {
		return nil, &FetchError{URL: imageURL, Reason: fmt.Sprintf("Failed to read image data: %v", err), Err: err}
	}
	if int64(len(data)) > f.maxSize {
		return nil, &FetchError{URL: imageURL, Reason: fmt.Sprintf("Image too large: exceeds limit of %d bytes", f.maxSize)}
	}

	sniffed := mimetype.Detect(data)
	if f.rejectSVG && sniffed.Is("image/svg+xml") {
		return nil, errSVG(imageURL, resp.StatusCode())
	}

	mimeType := resolveMIMEType(contentType, sniffed)
	log.Debug().Str("url", imageURL).Str("mimeType", mimeType).Int("bytes", len(data)).Msg("fetched image")

	return &Image{URL: imageURL, Data: data, MIMEType: mimeType}, nil
}

func errSVG(imageURL string, status int) *FetchError {
	return &FetchError{URL: imageURL, StatusCode: status, Reason: "Unsupported image type: SVG"}
}

// resolveMIMEType prefers the header's media type and falls back to the type
// sniffed from the bytes when the header is malformed.
func resolveMIMEType(contentType string, sniffed *mimetype.MIME) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if sniffed != nil && strings.HasPrefix(sniffed.String(), "image/") {
		return sniffed.String()
	}
	return fallbackMIMEType
}
