package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shadow-ai/src/config"
	"shadow-ai/src/logutil"
)

// ConfigSource is the read side of config.Store.
type ConfigSource interface {
	Load() config.Config
	Subscribe() (<-chan config.Config, func())
}

type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int

	// Overrides for tests; empty means the vendor default.
	OpenAIBaseURL string
	GeminiBaseURL string
}

// BuildFunc constructs a client for provider using apiKey.
type BuildFunc func(ctx context.Context, provider, apiKey string) (Client, error)

// Adapter owns the single live provider client.
type Adapter struct {
	cfg     ConfigSource
	opts    Options
	build   BuildFunc
	limiter *rate.Limiter
	http    *http.Client

	mu   sync.RWMutex
	live Client
}

func NewAdapter(cfg ConfigSource, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	a := &Adapter{
		cfg:  cfg,
		opts: opts,
		http: NewRetryingHTTPClient(opts.Timeout, opts.MaxRetries),
	}
	a.build = a.defaultBuild
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if err := a.Reload(context.Background()); err != nil {
		log.Printf("llm: initial client build failed: %v", err)
	}
	return a
}

// SetBuildFunc replaces the client constructor and rebuilds.
func (a *Adapter) SetBuildFunc(fn BuildFunc) error {
	a.mu.Lock()
	a.build = fn
	a.mu.Unlock()
	return a.Reload(context.Background())
}

func (a *Adapter) defaultBuild(ctx context.Context, provider, apiKey string) (Client, error) {
	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(apiKey, a.opts.OpenAIBaseURL, a.http), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, apiKey, a.opts.GeminiBaseURL)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// Reload discards the live client and builds one for the configured
// provider when an API key is present. No key leaves the adapter
// unconfigured without error.
func (a *Adapter) Reload(ctx context.Context) error {
	cfg := a.cfg.Load()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = nil

	if cfg.APIKey == "" {
		log.Printf("llm: no API key configured, client not initialized")
		return nil
	}
	c, err := a.build(ctx, cfg.APIProvider, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("build %s client: %w", cfg.APIProvider, err)
	}
	a.live = c
	log.Printf("llm: %s client initialized (key %s)", cfg.APIProvider, logutil.RedactKey(cfg.APIKey))
	return nil
}

// Run rebuilds the client on every config change until ctx is done.
func (a *Adapter) Run(ctx context.Context) {
	ch, cancel := a.cfg.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := a.Reload(ctx); err != nil {
				log.Printf("llm: reload after config change failed: %v", err)
			}
		}
	}
}

// Configured reports whether a client is live.
func (a *Adapter) Configured() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live != nil
}

// Provider returns the live client bound to model.
func (a *Adapter) Provider(model string) (Provider, error) {
	a.mu.RLock()
	live := a.live
	a.mu.RUnlock()
	if live == nil {
		return nil, ErrNoClient
	}
	p := live.Bind(model)
	if a.limiter != nil {
		p = &limitedProvider{Provider: p, limiter: a.limiter}
	}
	return p, nil
}

type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

func (p *limitedProvider) Extract(ctx context.Context, req Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return p.Provider.Extract(ctx, req)
}

func (p *limitedProvider) Generate(ctx context.Context, req Request) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return p.Provider.Generate(ctx, req)
}
