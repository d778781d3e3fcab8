// Package embedding provides the gateway that turns chunk and query text
// into fixed-dimension vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultVoyageAPIURL = "https://api.voyageai.com/v1/embeddings"

// ProviderError reports a provider-side embedding fault.
type ProviderError struct {
	StatusCode int // 0 for transport-level failures
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the fault is transient. Rate limits, server
// errors, and transport failures are retryable; other client errors are not.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// VoyageClient generates embeddings via the Voyage AI API. The same client
// encodes both chunk text at ingestion and query text at retrieval time, so
// both live in one comparable vector space.
type VoyageClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewVoyageClient creates a new Voyage embedding client.
func NewVoyageClient(apiKey, model string) *VoyageClient {
	return &VoyageClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultVoyageAPIURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageResponse struct {
	Data  []voyageEmbedding `json:"data"`
	Usage voyageUsage       `json:"usage"`
}

type voyageEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type voyageUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// Embed generates document embeddings for the given texts, in input order.
func (c *VoyageClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, "document")
}

// EmbedQuery generates a query embedding for a single text.
func (c *VoyageClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &ProviderError{Message: fmt.Sprintf("expected 1 embedding, got %d", len(vectors))}
	}
	return vectors[0], nil
}

func (c *VoyageClient) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := voyageRequest{
		Input:     texts,
		Model:     c.model,
		InputType: inputType,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var voyageResp voyageResponse
	if err := json.Unmarshal(body, &voyageResp); err != nil {
		return nil, &ProviderError{Message: "malformed response", Err: err}
	}

	// Sort by index to ensure order matches input
	vectors := make([][]float32, len(texts))
	for _, emb := range voyageResp.Data {
		if emb.Index < 0 || emb.Index >= len(texts) {
			return nil, &ProviderError{Message: fmt.Sprintf("embedding index %d out of range", emb.Index)}
		}
		vectors[emb.Index] = emb.Embedding
	}

	return vectors, nil
}

// Dimension returns the vector dimension for the model.
func (c *VoyageClient) Dimension() int {
	switch c.model {
	case "voyage-4-large", "voyage-3-large", "voyage-code-3":
		return 1024
	case "voyage-4", "voyage-3":
		return 1024
	case "voyage-4-lite", "voyage-3-lite":
		return 512
	default:
		return 1024
	}
}
