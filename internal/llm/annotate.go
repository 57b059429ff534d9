package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raine/page-image-prompts/internal/fetcher"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const (
	labelMaxResults  = 8
	webMaxResults    = 6
	promptLabelLimit = 6
	promptWebLimit   = 4
)

// AnnotateProvider describes images with Cloud Vision label and web
// detection, assembling the prompt from the returned annotations.
type AnnotateProvider struct {
	endpoint string
}

// NewAnnotateProvider creates a provider. endpoint overrides the public
// Cloud Vision base URL.
func NewAnnotateProvider(endpoint string) *AnnotateProvider {
	return &AnnotateProvider{endpoint: endpoint}
}

// Name implements DescriptionProvider.
func (a *AnnotateProvider) Name() string {
	return "Vision"
}

// RejectsSVG implements DescriptionProvider.
func (a *AnnotateProvider) RejectsSVG() bool {
	return false
}

// Describe implements DescriptionProvider.
func (a *AnnotateProvider) Describe(ctx context.Context, apiKey string, img *fetcher.Image) (*Description, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vision client: %w", err)
	}

	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image: &vision.Image{Content: img.Base64()},
			Features: []*vision.Feature{
				{Type: "LABEL_DETECTION", MaxResults: labelMaxResults},
				{Type: "WEB_DETECTION", MaxResults: webMaxResults},
			},
		}},
	}

	resp, err := svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			body := gerr.Body
			if body == "" {
				body = gerr.Message
			}
			return nil, &RemoteAPIError{Provider: a.Name(), StatusCode: gerr.Code, Body: body, Err: err}
		}
		return nil, fmt.Errorf("failed to annotate image: %w", err)
	}

	if len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &Description{Prompt: NoDescriptionPrompt, Raw: emptyRaw}, nil
	}

	annotation := resp.Responses[0]
	if annotation.Error != nil && annotation.Error.Code != 0 {
		return nil, &RemoteAPIError{
			Provider:   a.Name(),
			StatusCode: int(annotation.Error.Code),
			Body:       annotation.Error.Message,
		}
	}

	prompt := BuildAnnotationPrompt(annotation)
	log.Info().
		Int("labels", len(annotation.LabelAnnotations)).
		Bool("webDetection", annotation.WebDetection != nil).
		Msg("vision annotate call")

	return &Description{Prompt: prompt, Raw: marshalRaw(annotation)}, nil
}

// BuildAnnotationPrompt joins the best-guess label, up to six labels and up
// to four related web entities into one prompt.
func BuildAnnotationPrompt(annotation *vision.AnnotateImageResponse) string {
	if annotation == nil {
		return NoDescriptionPrompt
	}

	var parts []string
	web := annotation.WebDetection

	if web != nil && len(web.BestGuessLabels) > 0 && web.BestGuessLabels[0] != nil {
		if label := strings.TrimSpace(web.BestGuessLabels[0].Label); label != "" {
			parts = append(parts, label)
		}
	}

	var labels []string
	for _, l := range annotation.LabelAnnotations {
		if len(labels) == promptLabelLimit {
			break
		}
		if l != nil && l.Description != "" {
			labels = append(labels, l.Description)
		}
	}
	if len(labels) > 0 {
		parts = append(parts, "Labels: "+strings.Join(labels, ", "))
	}

	if web != nil {
		var related []string
		for _, e := range web.WebEntities {
			if len(related) == promptWebLimit {
				break
			}
			if e != nil && e.Description != "" {
				related = append(related, e.Description)
			}
		}
		if len(related) > 0 {
			parts = append(parts, "Related: "+strings.Join(related, ", "))
		}
	}

	if len(parts) == 0 {
		return NoDescriptionPrompt
	}
	return strings.Join(parts, ". ")
}
