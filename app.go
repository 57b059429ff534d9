package main

import (
	"errors"
	"fmt"

	"github.com/raine/page-image-prompts/internal/background"
	"github.com/raine/page-image-prompts/internal/config"
	"github.com/raine/page-image-prompts/internal/fetcher"
	"github.com/raine/page-image-prompts/internal/llm"
	"github.com/raine/page-image-prompts/internal/page"
	"github.com/raine/page-image-prompts/internal/scraper"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/rs/zerolog/log"
)

// app holds the background and page contexts for one process.
type app struct {
	store      *storage.SQLiteStore
	background *background.Service
	page       *page.Context
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.GeminiBaseURL
	if cfg.Provider == llm.ProviderVision {
		endpoint = cfg.VisionEndpoint
	}
	provider, err := llm.NewProvider(cfg.Provider, llm.ProviderOptions{Model: cfg.Model, Endpoint: endpoint})
	if err != nil {
		store.Close()
		return nil, err
	}

	fetch := fetcher.New().
		WithTimeout(cfg.FetchTimeout).
		WithMaxSize(cfg.MaxImageBytes).
		WithRejectSVG(provider.RejectsSVG())
	analyzer := llm.NewAnalyzer(store, fetch, provider).WithImageTimeout(cfg.ImageTimeout)

	collector, err := scraper.New(cfg.Scraper, cfg.PageTimeout)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create scraper: %w", err)
	}

	log.Info().
		Str("provider", provider.Name()).
		Str("scraper", cfg.Scraper).
		Dur("imageTimeout", cfg.ImageTimeout).
		Msg("contexts initialized")

	return &app{
		store:      store,
		background: background.NewService(store, analyzer),
		page:       page.New(collector),
	}, nil
}

// Close tears down the routers, then the store.
func (a *app) Close() error {
	return errors.Join(a.background.Close(), a.page.Close(), a.store.Close())
}
