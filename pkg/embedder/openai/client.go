package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oceanbase/powermem-recall/pkg/embedder"
	"github.com/oceanbase/powermem-recall/pkg/resilience"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Client is an OpenAI embedder.
// It implements embedder.Provider on top of the OpenAI Embeddings API; every
// request goes through a resilience.Guard (rate limit + circuit breaker).
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	guard      *resilience.Guard
}

// DefaultModel is the only embedding model the pinned go-openai release can
// request.
const DefaultModel = "text-embedding-ada-002"

// Config is the configuration for the OpenAI embedder.
// APIKey: OpenAI API key (required)
// Model: embedding model name, currently fixed to DefaultModel; empty selects it
// BaseURL: API base URL, defaults to the OpenAI endpoint
// Dimensions: vector dimensions, defaults to 1536
// RequestsPerSecond: client-side rate limit, 0 disables it
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Dimensions        int
	RequestsPerSecond float64
}

// NewClient creates a new OpenAI embedder client.
//
// Args:
//   - cfg: configuration containing APIKey, Model, BaseURL, Dimensions
//
// Returns:
//   - *Client: embedder client instance
//   - error: types.ErrInvalidConfig when the API key is missing or the
//     model is not DefaultModel
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, types.NewMemoryError("NewOpenAIEmbedder", types.ErrInvalidConfig)
	}
	if cfg.Model != "" && cfg.Model != DefaultModel {
		return nil, types.NewMemoryError("NewOpenAIEmbedder",
			fmt.Errorf("%w: unsupported embedding model %q", types.ErrInvalidConfig, cfg.Model))
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      openai.AdaEmbeddingV2,
		dimensions: dimensions,
		guard: resilience.NewGuard(resilience.Config{
			Name:              "openai-embedder",
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             4,
		}),
	}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.guard.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: c.model,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("no data returned from OpenAI API")
		}
		return toFloat64(resp.Data[0].Embedding), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	return out.([]float64), nil
}

// Similarity is cosine similarity.
func (c *Client) Similarity(a, b []float64) float64 {
	return embedder.CosineSimilarity(a, b)
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// State exposes the circuit breaker state.
func (c *Client) State() string {
	return c.guard.State()
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
