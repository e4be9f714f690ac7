package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIClient uses the Gemini API.
type GenAIClient struct {
	client     *genai.Client
	model      string
	embedModel string
}

// NewGenAIClient creates a client for the Gemini API.
func NewGenAIClient(ctx context.Context, apiKey, model, embedModel string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model, embedModel: embedModel}, nil
}

// Generate runs a single-turn completion.
func (c *GenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Embed returns the embedding of text.
func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.client.Models.EmbedContent(ctx, c.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Name returns the provider and model.
func (c *GenAIClient) Name() string {
	return fmt.Sprintf("genai:%s", c.model)
}
