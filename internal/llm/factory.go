package llm

import (
	"context"
	"fmt"
	"time"

	"labreport/internal/config"
	"labreport/internal/logging"
	"labreport/internal/types"
)

// ConfigFrom converts the YAML section into a client Config.
func ConfigFrom(cfg config.LLMConfig, timeout time.Duration) Config {
	return Config{
		Provider:      Provider(cfg.Provider),
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		Model:         cfg.Model,
		Timeout:       timeout,
		Temperature:   cfg.Temperature,
		MaxConcurrent: cfg.MaxConcurrent,
	}
}

// NewClient creates the LLM client for the configured provider.
// A missing API key is reported here so callers can treat it as a
// construction failure.
func NewClient(ctx context.Context, cfg Config) (types.LLMClient, error) {
	logging.BootDebug("Creating LLM client: provider=%s model=%s", cfg.Provider, cfg.Model)

	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: API key not configured")
		}
		return NewOpenAIClient(cfg), nil
	case ProviderGemini:
		if cfg.BaseURL == "https://api.openai.com/v1" {
			cfg.BaseURL = ""
		}
		if cfg.Model == "gpt-4o-mini" {
			cfg.Model = ""
		}
		c, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
