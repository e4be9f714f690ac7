// Package llm provides text generation and embedding clients for the
// estimation pipeline.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"taskcal/internal/config"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is a provider able to both generate and embed.
type Client interface {
	Generator
	Embedder
	Name() string
}

// New returns the client selected by cfg.Provider.
func New(ctx context.Context, logger *slog.Logger, cfg config.LLM) (Client, error) {
	switch cfg.Provider {
	case "", "ollama":
		logger.Info("Using Ollama language model", "endpoint", cfg.OllamaEndpoint, "model", cfg.OllamaModel)
		return NewOllamaClient(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.OllamaEmbedding), nil
	case "genai":
		logger.Info("Using Google GenAI language model", "model", cfg.GenAIModel)
		return NewGenAIClient(ctx, cfg.GenAIAPIKey, cfg.GenAIModel, cfg.GenAIEmbedding)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
