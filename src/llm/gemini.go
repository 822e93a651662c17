package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"shadow-ai/src/config"
)

// GeminiClient wraps a genai client.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) Name() string { return config.ProviderGemini }

func (c *GeminiClient) Bind(model string) Provider {
	return &GeminiProvider{client: c.client, model: model}
}

// GetModel fetches model metadata; used to test a key.
func (c *GeminiClient) GetModel(ctx context.Context, model string) error {
	if _, err := c.client.Models.Get(ctx, model, nil); err != nil {
		return fmt.Errorf("gemini get model %s failed: %w", model, err)
	}
	return nil
}

// GeminiProvider generates content with one model. Images travel as inline
// bytes with their MIME type; the system prompt goes in the config.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func (p *GeminiProvider) Name() string  { return config.ProviderGemini }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Extract(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.User)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return p.generate(ctx, req.System, parts)
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	return p.generate(ctx, req.System, []*genai.Part{genai.NewPartFromText(req.User)})
}

func (p *GeminiProvider) generate(ctx context.Context, system string, parts []*genai.Part) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](Temperature),
		MaxOutputTokens: MaxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
