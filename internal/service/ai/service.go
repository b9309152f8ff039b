package ai

import (
	"context"
	"fmt"

	"hijrachat/internal/config"
)

// Generator produces a single reply for a fully built prompt.
// An empty reply means the provider answered in a shape that carried no text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewGenerator builds the generator of the configured provider.
func NewGenerator(ctx context.Context, cfg config.ProviderConfig) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key required", cfg.Name)
	}
	switch cfg.Name {
	case config.ProviderGemini, "":
		return NewGeminiGenerator(ctx, cfg)
	case config.ProviderOpenAI, config.ProviderClaude:
		return NewChatModelGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Name)
	}
}
