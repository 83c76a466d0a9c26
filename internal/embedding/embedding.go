// Package embedding turns text into vectors through an external embedding
// service. Ollama and Gemini are supported; every client is wrapped in a
// rate-limited batcher before use.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jobmate/discovery-service/internal/config"
)

// Embedder computes embeddings. EmbedBatch returns one vector per input, in
// input order.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the configured provider client behind a rate limiter.
func New(ctx context.Context, cfg config.EmbeddingConfig, log *zap.Logger) (Embedder, error) {
	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		base = NewOllama(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel, Token: cfg.OllamaToken})
	case "gemini":
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	log.Named("embedding").Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", base.Model()),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Float64("rate_per_second", cfg.RatePerSecond))
	return NewLimited(base, cfg.RatePerSecond, cfg.Burst, cfg.BatchSize), nil
}

func checkCount(provider string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s: got %d embeddings for %d inputs", provider, got, want)
	}
	return nil
}
