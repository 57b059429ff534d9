package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/raine/page-image-prompts/internal/fetcher"
	"github.com/raine/page-image-prompts/internal/llm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <image-path> [gemini|vision|both]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GOOGLE_API_KEY - API key sent to the provider\n")
		os.Exit(1)
	}

	imagePath := os.Args[1]
	provider := "both"
	if len(os.Args) >= 3 {
		provider = os.Args[2]
	}

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "GOOGLE_API_KEY is not set")
		os.Exit(1)
	}

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}

	img := &fetcher.Image{
		URL:      "file://" + filepath.ToSlash(imagePath),
		Data:     imageData,
		MIMEType: mimetype.Detect(imageData).String(),
	}
	ctx := context.Background()

	switch provider {
	case llm.ProviderGemini, llm.ProviderVision:
		run(ctx, provider, apiKey, img)
	case "both":
		run(ctx, llm.ProviderGemini, apiKey, img)
		fmt.Println("\n" + strings.Repeat("-", 50) + "\n")
		run(ctx, llm.ProviderVision, apiKey, img)
	default:
		fmt.Fprintf(os.Stderr, "Unknown provider: %s (use gemini, vision, or both)\n", provider)
		os.Exit(1)
	}
}

func run(ctx context.Context, name, apiKey string, img *fetcher.Image) {
	p, err := llm.NewProvider(name, llm.ProviderOptions{})
	if err != nil {
		fmt.Printf("Error creating provider: %v\n", err)
		return
	}
	fmt.Printf("=== %s ===\n", strings.ToUpper(p.Name()))

	if p.RejectsSVG() && strings.Contains(img.MIMEType, "svg") {
		fmt.Println("Error analyzing image: Unsupported image type: SVG")
		return
	}

	desc, err := p.Describe(ctx, apiKey, img)
	if err != nil {
		fmt.Printf("Error analyzing image: %v\n", err)
		return
	}

	fmt.Printf("MIME type: %s\n", img.MIMEType)
	fmt.Printf("Prompt:    %s\n", desc.Prompt)
	fmt.Printf("Raw:       %d bytes\n", len(desc.Raw))
}
