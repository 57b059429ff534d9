package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raine/page-image-prompts/internal/fetcher"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/rs/zerolog/log"
)

// ErrMissingCredential is returned before any remote call when no API key
// is configured.
var ErrMissingCredential = storage.ErrMissingCredential

// AnalysisResult is the outcome for one image.
type AnalysisResult struct {
	ImageURL string          `json:"imageUrl"`
	Prompt   string          `json:"prompt"`
	Raw      json.RawMessage `json:"raw"`

	// Degraded marks a result standing in for a failed image. It stays in
	// process and is not sent over the wire.
	Degraded bool `json:"-"`
}

// ImageFetcher downloads one image.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (*fetcher.Image, error)
}

// Analyzer fetches images and runs them through a DescriptionProvider.
type Analyzer struct {
	store        storage.CredentialStore
	fetcher      ImageFetcher
	provider     DescriptionProvider
	imageTimeout time.Duration
}

// NewAnalyzer creates an analyzer reading the API key from store.
func NewAnalyzer(store storage.CredentialStore, fetcher ImageFetcher, provider DescriptionProvider) *Analyzer {
	return &Analyzer{store: store, fetcher: fetcher, provider: provider}
}

// WithImageTimeout bounds the fetch and description of each image in a
// batch. An image that runs over yields a degraded result. Zero disables
// the per-image deadline.
func (a *Analyzer) WithImageTimeout(timeout time.Duration) *Analyzer {
	a.imageTimeout = timeout
	return a
}

// AnalyzeImage fetches imageURL and describes it. The credential is read
// before anything goes over the network.
func (a *Analyzer) AnalyzeImage(ctx context.Context, imageURL string) (*AnalysisResult, error) {
	apiKey, err := storage.RequireCredential(ctx, a.store)
	if err != nil {
		return nil, err
	}

	img, err := a.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	desc, err := a.provider.Describe(ctx, apiKey, img)
	if err != nil {
		return nil, err
	}

	return &AnalysisResult{ImageURL: imageURL, Prompt: desc.Prompt, Raw: desc.Raw}, nil
}

// AnalyzeImages analyzes imageURLs one at a time in the given order. A
// failing image yields a result whose prompt starts with "Error:" and the
// batch continues. A missing credential or a cancelled context fails the
// whole batch.
func (a *Analyzer) AnalyzeImages(ctx context.Context, imageURLs []string) ([]AnalysisResult, error) {
	if _, err := storage.RequireCredential(ctx, a.store); err != nil {
		return nil, err
	}

	results := make([]AnalysisResult, 0, len(imageURLs))
	degraded := 0
	for i, imageURL := range imageURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := a.analyzeWithDeadline(ctx, imageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, err
			}
			log.Warn().Err(err).Str("url", imageURL).Int("index", i).Msg("image analysis failed")
			results = append(results, AnalysisResult{
				ImageURL: imageURL,
				Prompt:   "Error: " + err.Error(),
				Raw:      emptyRaw,
				Degraded: true,
			})
			degraded++
			continue
		}
		results = append(results, *result)
	}

	log.Info().
		Str("provider", a.provider.Name()).
		Int("images", len(imageURLs)).
		Int("degraded", degraded).
		Msg("analyzed images")

	return results, nil
}

func (a *Analyzer) analyzeWithDeadline(ctx context.Context, imageURL string) (*AnalysisResult, error) {
	if a.imageTimeout <= 0 {
		return a.AnalyzeImage(ctx, imageURL)
	}

	imageCtx, cancel := context.WithTimeout(ctx, a.imageTimeout)
	defer cancel()

	result, err := a.AnalyzeImage(imageCtx, imageURL)
	if err != nil && ctx.Err() == nil && errors.Is(imageCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("Image analysis timed out after %s", a.imageTimeout)
	}
	return result, err
}
