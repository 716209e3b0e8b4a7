package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider calls the Gemini API in JSON response mode.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider against the Gemini developer API.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig, httpClient *http.Client) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete generates a JSON answer for prompt.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", classifyGemini(err)
	}
	return resp.Text(), nil
}

func classifyGemini(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Error(), nil, err)
	}
	return transportError(err)
}
