package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"shadow-ai/src/config"
)

var keyFormats = map[string]*regexp.Regexp{
	config.ProviderOpenAI: regexp.MustCompile(`^sk-\w{48}$`),
	config.ProviderGemini: regexp.MustCompile(`^AIzaSyB.*$`),
}

// IsValidAPIKeyFormat is a shape check only; an empty provider is inferred
// from the key.
func IsValidAPIKeyFormat(key, provider string) bool {
	key = strings.TrimSpace(key)
	if provider == "" {
		provider = config.InferProvider(key)
	}
	re, ok := keyFormats[provider]
	return ok && re.MatchString(key)
}

// TestKey checks key against the vendor API. OpenAI lists models; Gemini
// fetches the default model's metadata.
func (a *Adapter) TestKey(ctx context.Context, key, provider string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is required")
	}
	if provider == "" {
		provider = config.InferProvider(key)
	}
	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(key, a.opts.OpenAIBaseURL, a.http).ListModels(ctx)
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, key, a.opts.GeminiBaseURL)
		if err != nil {
			return err
		}
		return c.GetModel(ctx, config.DefaultGeminiModel)
	default:
		return fmt.Errorf("unknown provider %q", provider)
	}
}
