package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cfg    Config
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	cfg = cfg.withDefaults()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	// Deterministic output keeps extraction reproducible across retries.
	temperature := float32(0)
	model.Temperature = &temperature

	return &Gemini{
		client: client,
		model:  model,
		cfg:    cfg,
	}, nil
}

// ExtractText sends the normalized image to Gemini and returns the raw
// response text. Transient failures are retried with backoff before the call
// is reported as a service failure.
func (g *Gemini) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	text, err := retry(ctx, g.cfg.MaxRetries, g.cfg.RetryBackoff, func() (string, error) {
		return g.generate(ctx, imageData)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	return text, nil
}

func (g *Gemini) generate(ctx context.Context, imageData []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	// The normalizer guarantees PNG input, and genai.ImageData expects just
	// the format suffix, not the full MIME type.
	parts := []genai.Part{
		genai.ImageData("png", imageData),
		genai.Text(documentScanPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return responseText.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
