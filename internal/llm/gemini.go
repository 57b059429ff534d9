package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raine/page-image-prompts/internal/fetcher"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-pro"

const geminiPrompt = "Describe this image and produce a concise prompt for generative AI. " +
	"Include subject, style, lighting, composition, and notable details."

// GeminiProvider describes images with Gemini's generateContent endpoint.
type GeminiProvider struct {
	model   string
	baseURL string
}

// NewGeminiProvider creates a provider for model. baseURL overrides the
// public endpoint and is meant for tests and proxies.
func NewGeminiProvider(model, baseURL string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{model: model, baseURL: baseURL}
}

// Name implements DescriptionProvider.
func (g *GeminiProvider) Name() string {
	return "Gemini"
}

// RejectsSVG implements DescriptionProvider. Gemini does not accept SVG
// inline data.
func (g *GeminiProvider) RejectsSVG() bool {
	return true
}

// Describe implements DescriptionProvider.
func (g *GeminiProvider) Describe(ctx context.Context, apiKey string, img *fetcher.Image) (*Description, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(geminiPrompt),
		{InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, g.wrapError(err)
	}

	desc := buildGeminiDescription(result)

	event := log.Info().Str("model", g.model).Str("mimeType", img.MIMEType)
	if result.UsageMetadata != nil {
		event = event.
			Int("inputTokens", int(result.UsageMetadata.PromptTokenCount)).
			Int("outputTokens", int(result.UsageMetadata.CandidatesTokenCount))
	}
	event.Msg("vision llm call")

	return desc, nil
}

// buildGeminiDescription joins the first candidate's text parts.
func buildGeminiDescription(result *genai.GenerateContentResponse) *Description {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return &Description{Prompt: NoDescriptionPrompt, Raw: emptyRaw}
	}

	candidate := result.Candidates[0]
	var texts []string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}

	prompt := strings.Join(texts, "\n")
	if prompt == "" {
		prompt = NoDescriptionPrompt
	}
	return &Description{Prompt: prompt, Raw: marshalRaw(candidate)}
}

func (g *GeminiProvider) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteAPIError{Provider: g.Name(), StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	return fmt.Errorf("failed to generate content: %w", err)
}
