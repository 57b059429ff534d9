// Package background answers credential and analysis messages on behalf of
// the popup.
package background

import (
	"context"

	"github.com/raine/page-image-prompts/internal/llm"
	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/rs/zerolog/log"
)

// Analyzer runs a batch of image analyses.
type Analyzer interface {
	AnalyzeImages(ctx context.Context, imageURLs []string) ([]llm.AnalysisResult, error)
}

// Service owns the background router. Create it once at startup and Close
// it on shutdown.
type Service struct {
	store    storage.CredentialStore
	analyzer Analyzer
	router   *messaging.Router
}

// NewService wires the CHECK_API_KEY and ANALYZE_IMAGES handlers.
func NewService(store storage.CredentialStore, analyzer Analyzer) *Service {
	s := &Service{store: store, analyzer: analyzer}
	s.router = messaging.NewRouter(messaging.ContextBackground, map[messaging.Kind]messaging.HandlerFunc{
		messaging.KindCheckAPIKey:   s.handleCheckAPIKey,
		messaging.KindAnalyzeImages: s.handleAnalyzeImages,
	})
	return s
}

// Router returns the dispatch table for transports.
func (s *Service) Router() *messaging.Router {
	return s.router
}

// Close stops the router.
func (s *Service) Close() error {
	return s.router.Close()
}

func (s *Service) handleCheckAPIKey(ctx context.Context, _ messaging.Message) (*messaging.Response, error) {
	hasKey, err := storage.HasCredential(ctx, s.store)
	if err != nil {
		log.Error().Err(err).Msg("failed to read credential")
		return &messaging.Response{OK: false, Error: err.Error()}, nil
	}
	return &messaging.Response{OK: true, HasKey: messaging.Bool(hasKey)}, nil
}

func (s *Service) handleAnalyzeImages(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
	results, err := s.analyzer.AnalyzeImages(ctx, msg.ImageURLs)
	if err != nil {
		log.Warn().Err(err).Int("images", len(msg.ImageURLs)).Msg("analysis batch failed")
		return &messaging.Response{OK: false, Error: err.Error()}, nil
	}
	return &messaging.Response{OK: true, Results: results}, nil
}
