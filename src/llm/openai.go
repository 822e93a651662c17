package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	openai "github.com/sashabaranov/go-openai"

	"shadow-ai/src/config"
)

// NewRetryingHTTPClient returns an http.Client with a per-attempt timeout
// that retries connection failures and 429/5xx responses.
func NewRetryingHTTPClient(timeout time.Duration, maxRetries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = log.Default()
	return rc.StandardClient()
}

// OpenAIClient wraps a go-openai client.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Name() string { return config.ProviderOpenAI }

func (c *OpenAIClient) Bind(model string) Provider {
	return &OpenAIProvider{client: c.client, model: model}
}

// ListModels is the lightweight call used to test a key.
func (c *OpenAIClient) ListModels(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai list models failed: %w", err)
	}
	return nil
}

// OpenAIProvider sends chat completions to one model. Images travel as
// data-URL strings in image_url parts.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func (p *OpenAIProvider) Name() string  { return config.ProviderOpenAI }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Extract(ctx context.Context, req Request) (string, error) {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.User}}
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL()},
		})
	}
	return p.complete(ctx, req.System, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	return p.complete(ctx, req.System, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})
}

func (p *OpenAIProvider) complete(ctx context.Context, system string, user openai.ChatCompletionMessage) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, user)

	chatReq := openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            msgs,
		MaxCompletionTokens: MaxTokens,
	}
	// reasoning models only accept the default temperature
	if !isReasoningModel(p.model) {
		chatReq.Temperature = Temperature
	}
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

var reasoningPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

func isReasoningModel(model string) bool {
	for _, prefix := range reasoningPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
