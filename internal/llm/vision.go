package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raine/page-image-prompts/internal/fetcher"
)

// NoDescriptionPrompt is shown when a provider returns nothing usable.
const NoDescriptionPrompt = "No descriptive data returned."

// Provider names accepted by NewProvider.
const (
	ProviderGemini = "gemini"
	ProviderVision = "vision"
)

// Description is a provider's reading of one image.
type Description struct {
	Prompt string
	Raw    json.RawMessage
}

// DescriptionProvider turns an image into a short natural-language prompt.
type DescriptionProvider interface {
	// Name identifies the provider in logs and error messages.
	Name() string
	// RejectsSVG reports whether SVG images must be filtered out before
	// they reach Describe.
	RejectsSVG() bool
	// Describe sends img to the remote API authenticated with apiKey.
	Describe(ctx context.Context, apiKey string, img *fetcher.Image) (*Description, error)
}

// RemoteAPIError is a non-success response from a provider.
type RemoteAPIError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("%s API error: %d %s", e.Provider, e.StatusCode, e.Body)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// ProviderOptions configures NewProvider. Empty fields use the provider's
// production defaults.
type ProviderOptions struct {
	Model    string
	Endpoint string
}

// NewProvider returns the provider registered under name.
func NewProvider(name string, opts ProviderOptions) (DescriptionProvider, error) {
	switch name {
	case "", ProviderGemini:
		return NewGeminiProvider(opts.Model, opts.Endpoint), nil
	case ProviderVision:
		return NewAnnotateProvider(opts.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (use %s or %s)", name, ProviderGemini, ProviderVision)
	}
}

var emptyRaw = json.RawMessage(`{}`)

func marshalRaw(v any) json.RawMessage {
	if v == nil {
		return emptyRaw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return emptyRaw
	}
	return data
}
