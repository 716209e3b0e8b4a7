// Package llm classifies transactions with a hosted language model.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider sends one prompt and returns the raw text answer. Implementations
// must not retry on their own and must return failures as *Error.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Name    string // "anthropic" or "gemini"
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewProvider builds the provider named in cfg.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", cfg.Name)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Name {
	case "anthropic", "":
		return NewAnthropicProvider(cfg, httpClient), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Name)
	}
}
