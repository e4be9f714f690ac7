package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	endpoint   string
	model      string
	embedModel string
	client     *http.Client
}

// NewOllamaClient creates a client. Empty arguments fall back to defaults.
func NewOllamaClient(endpoint, model, embedModel string) *OllamaClient {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &OllamaClient{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		model:      model,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Generate runs a non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	var resp ollamaGenerateResponse
	err := c.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	}, &resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Response), nil
}

// Embed returns the embedding of text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	if err := c.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: c.embedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return resp.Embedding, nil
}

// Name returns the provider and model.
func (c *OllamaClient) Name() string {
	return fmt.Sprintf("ollama:%s", c.model)
}

func (c *OllamaClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
