package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadow-ai/src/config"
)

type staticConfig struct {
	mu  sync.Mutex
	cfg config.Config
	ch  chan config.Config
}

func newStaticConfig(cfg config.Config) *staticConfig {
	return &staticConfig{cfg: cfg, ch: make(chan config.Config, 1)}
}

func (s *staticConfig) Load() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *staticConfig) Subscribe() (<-chan config.Config, func()) { return s.ch, func() {} }

func (s *staticConfig) set(cfg config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.ch <- cfg
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestNewImageDetectsMIME(t *testing.T) {
	img := NewImage(tinyPNG(t))
	assert.Equal(t, "image/png", img.MIMEType)
	assert.True(t, strings.HasPrefix(img.DataURL(), "data:image/png;base64,"))

	unknown := NewImage([]byte("not an image"))
	assert.Equal(t, "image/png", unknown.MIMEType)
}

func TestIsValidAPIKeyFormat(t *testing.T) {
	openaiKey := "sk-" + strings.Repeat("a", 48)
	tests := []struct {
		name     string
		key      string
		provider string
		want     bool
	}{
		{"OpenAIValid", openaiKey, config.ProviderOpenAI, true},
		{"OpenAIInferred", openaiKey, "", true},
		{"OpenAITooShort", "sk-abc", config.ProviderOpenAI, false},
		{"GeminiValid", "AIzaSyB-something", config.ProviderGemini, true},
		{"GeminiInferred", "AIzaSyBxyz", "", true},
		{"GeminiWrongPrefix", "AIzaXYZ", config.ProviderGemini, false},
		{"UnknownProvider", openaiKey, "claude", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAPIKeyFormat(tt.key, tt.provider))
		})
	}
}

func openAIServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			body, _ := io.ReadAll(r.Body)
			if captured != nil {
				_ = json.Unmarshal(body, captured)
			}
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello from openai"},"finish_reason":"stop"}]}`)
		case strings.HasSuffix(r.URL.Path, "/models"):
			if r.Header.Get("Authorization") != "Bearer good-key" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"gpt-4o","object":"model"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOpenAIProviderExtract(t *testing.T) {
	var body map[string]any
	srv := openAIServer(t, &body)
	defer srv.Close()

	c := NewOpenAIClient("good-key", srv.URL+"/v1", NewRetryingHTTPClient(5*time.Second, 0))
	p := c.Bind("gpt-4o")
	assert.Equal(t, "gpt-4o", p.Model())

	out, err := p.Extract(context.Background(), Request{System: "sys", User: "usr", Images: []Image{NewImage(tinyPNG(t))}})
	require.NoError(t, err)
	assert.Equal(t, "hello from openai", out)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-6)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	raw, _ := json.Marshal(msgs[1])
	assert.Contains(t, string(raw), "data:image/png;base64,")
	assert.Contains(t, string(raw), `"image_url"`)
}

func TestOpenAIProviderGenerateAllowedModels(t *testing.T) {
	for _, model := range config.AllowedModels(config.ProviderOpenAI) {
		t.Run(model, func(t *testing.T) {
			var body map[string]any
			srv := openAIServer(t, &body)
			defer srv.Close()

			p := NewOpenAIClient("good-key", srv.URL+"/v1", nil).Bind(model)
			out, err := p.Generate(context.Background(), Request{System: "sys", User: "usr"})
			require.NoError(t, err)
			assert.Equal(t, "hello from openai", out)
			assert.Equal(t, model, body["model"])
			if isReasoningModel(model) {
				assert.NotContains(t, body, "temperature")
			} else {
				assert.InDelta(t, 0.2, body["temperature"], 1e-6)
			}
		})
	}
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("gpt-5"))
	assert.True(t, isReasoningModel("o4-mini"))
	assert.True(t, isReasoningModel("o3"))
	assert.False(t, isReasoningModel("gpt-4o"))
}

func geminiServer(t *testing.T, captured *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			body, _ := io.ReadAll(r.Body)
			if captured != nil {
				*captured = string(body)
			}
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hello from gemini"}]}}]}`)
		case strings.Contains(r.URL.Path, "/models/"):
			_, _ = io.WriteString(w, `{"name":"models/gemini-2.5-flash"}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGeminiProviderExtract(t *testing.T) {
	var body string
	srv := geminiServer(t, &body)
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), "AIzaSyB-test", srv.URL+"/")
	require.NoError(t, err)
	p := c.Bind(config.DefaultGeminiModel)

	out, err := p.Extract(context.Background(), Request{System: "sys", User: "usr", Images: []Image{NewImage(tinyPNG(t))}})
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", out)
	assert.Contains(t, body, "inlineData")
	assert.Contains(t, body, "image/png")
	assert.Contains(t, body, "systemInstruction")
}

type fakeClient struct {
	name  string
	calls int
	mu    sync.Mutex
}

func (c *fakeClient) Name() string { return c.name }
func (c *fakeClient) Bind(model string) Provider {
	return &fakeProvider{client: c, model: model}
}

type fakeProvider struct {
	client *fakeClient
	model  string
}

func (p *fakeProvider) Name() string  { return p.client.name }
func (p *fakeProvider) Model() string { return p.model }
func (p *fakeProvider) Extract(ctx context.Context, req Request) (string, error) {
	return p.Generate(ctx, req)
}
func (p *fakeProvider) Generate(context.Context, Request) (string, error) {
	p.client.mu.Lock()
	p.client.calls++
	p.client.mu.Unlock()
	return "ok", nil
}

func fakeBuild(built *[]string) BuildFunc {
	return func(_ context.Context, provider, apiKey string) (Client, error) {
		*built = append(*built, provider+":"+apiKey)
		return &fakeClient{name: provider}, nil
	}
}

func TestAdapterWithoutKeyIsUnconfigured(t *testing.T) {
	a := NewAdapter(newStaticConfig(config.Default()), Options{})
	assert.False(t, a.Configured())
	_, err := a.Provider("gpt-4o")
	require.ErrorIs(t, err, ErrNoClient)
}

func TestAdapterReloadsOnConfigChange(t *testing.T) {
	src := newStaticConfig(config.Default())
	a := NewAdapter(src, Options{})
	var built []string
	require.NoError(t, a.SetBuildFunc(fakeBuild(&built)))
	assert.Empty(t, built)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	cfg := config.Default()
	cfg.APIKey = "sk-123"
	cfg.APIProvider = config.ProviderOpenAI
	src.set(cfg)

	require.Eventually(t, a.Configured, time.Second, 10*time.Millisecond)
	p, err := a.Provider("gpt-5")
	require.NoError(t, err)
	assert.Equal(t, config.ProviderOpenAI, p.Name())
	assert.Equal(t, "gpt-5", p.Model())
	assert.Equal(t, []string{"openai:sk-123"}, built)

	cfg.APIKey = ""
	src.set(cfg)
	require.Eventually(t, func() bool { return !a.Configured() }, time.Second, 10*time.Millisecond)
}

func TestAdapterRateLimitsRequests(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "AIzaSyB-test"
	a := NewAdapter(newStaticConfig(cfg), Options{RequestsPerSecond: 1000, Burst: 1})
	var built []string
	require.NoError(t, a.SetBuildFunc(fakeBuild(&built)))

	p, err := a.Provider(config.DefaultGeminiModel)
	require.NoError(t, err)
	_, ok := p.(*limitedProvider)
	assert.True(t, ok, "expected rate-limited provider")

	for i := 0; i < 3; i++ {
		out, err := p.Generate(context.Background(), Request{User: "x"})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, Request{User: "x"})
	assert.Error(t, err)
}

func TestTestKeyOpenAI(t *testing.T) {
	srv := openAIServer(t, nil)
	defer srv.Close()

	a := NewAdapter(newStaticConfig(config.Default()), Options{OpenAIBaseURL: srv.URL + "/v1", MaxRetries: 0})
	require.NoError(t, a.TestKey(context.Background(), "good-key", config.ProviderOpenAI))
	assert.Error(t, a.TestKey(context.Background(), "bad-key", config.ProviderOpenAI))
	assert.Error(t, a.TestKey(context.Background(), "  ", ""))
}

func TestTestKeyGemini(t *testing.T) {
	srv := geminiServer(t, nil)
	defer srv.Close()

	a := NewAdapter(newStaticConfig(config.Default()), Options{GeminiBaseURL: srv.URL + "/"})
	require.NoError(t, a.TestKey(context.Background(), "AIzaSyB-test", ""))
}
