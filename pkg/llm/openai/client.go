package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/oceanbase/powermem-recall/pkg/llm"
	"github.com/oceanbase/powermem-recall/pkg/resilience"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Client is an OpenAI chat-completion client implementing llm.Provider.
// Requests are guarded by a rate limiter and circuit breaker.
type Client struct {
	client *openai.Client
	model  string
	guard  *resilience.Guard
}

// Config is the configuration for the OpenAI LLM.
// APIKey: OpenAI API key (required)
// Model: model name, defaults to "gpt-4o-mini"
// BaseURL: API base URL, defaults to the OpenAI endpoint
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerSecond float64
}

// NewClient creates a new OpenAI LLM client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, types.NewMemoryError("NewOpenAILLM", types.ErrInvalidConfig)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		guard: resilience.NewGuard(resilience.Config{
			Name:              "openai-llm",
			RequestsPerSecond: cfg.RequestsPerSecond,
		}),
	}, nil
}

// GenerateWithMessages generates text using message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	out, err := c.guard.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    chatMessages,
			Temperature: float32(options.Temperature),
			MaxTokens:   options.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("no choices returned from OpenAI API")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrLLMOperation, err)
	}
	return out.(string), nil
}
