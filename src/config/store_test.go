package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.json"))
}

func TestNewStoreWritesDefaults(t *testing.T) {
	s := newTestStore(t)
	if _, err := os.Stat(s.Path()); err != nil {
		t.Fatalf("expected default config file: %v", err)
	}
	if got := s.Load(); got != Default() {
		t.Errorf("Load() = %+v, want defaults %+v", got, Default())
	}
	if s.HasAPIKey() {
		t.Error("expected no API key in defaults")
	}
}

func TestLoadCoercesInvalidModel(t *testing.T) {
	s := newTestStore(t)
	cfg := Default()
	cfg.APIProvider = ProviderOpenAI
	cfg.ExtractionModel = "bad-model"
	cfg.SolutionModel = "gpt-5"
	if err := s.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := s.Load()
	if got.ExtractionModel != "gpt-4o" {
		t.Errorf("ExtractionModel = %q, want gpt-4o", got.ExtractionModel)
	}
	if got.SolutionModel != "gpt-5" {
		t.Errorf("SolutionModel = %q, want gpt-5", got.SolutionModel)
	}
}

func TestLoadInvalidProviderFallsBackToOpenAI(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(`{"apiProvider":"claude","extractionModel":"gemini-2.5-pro"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got := s.Load()
	if got.APIProvider != ProviderOpenAI {
		t.Errorf("APIProvider = %q, want openai", got.APIProvider)
	}
	if got.ExtractionModel != DefaultOpenAIModel {
		t.Errorf("ExtractionModel = %q, want %s", got.ExtractionModel, DefaultOpenAIModel)
	}
}

func TestLoadCorruptFileYieldsDefaults(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := s.Load(); got != Default() {
		t.Errorf("Load() = %+v, want defaults", got)
	}
}

func TestUpdateInfersProviderFromKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		provider string
		model    string
	}{
		{"OpenAIKey", "sk-abc", ProviderOpenAI, DefaultOpenAIModel},
		{"GeminiKey", "AIzaSyBxyz", ProviderGemini, DefaultGeminiModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			got, err := s.Update(Partial{APIKey: strPtr(tt.key)})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.APIProvider != tt.provider {
				t.Errorf("APIProvider = %q, want %q", got.APIProvider, tt.provider)
			}
			if got.SolutionModel != tt.model {
				t.Errorf("SolutionModel = %q, want %q", got.SolutionModel, tt.model)
			}
			if !s.HasAPIKey() {
				t.Error("expected key to be persisted")
			}
		})
	}
}

func TestUpdateExplicitProviderWins(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Update(Partial{APIKey: strPtr("sk-abc"), APIProvider: strPtr(ProviderGemini)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.APIProvider != ProviderGemini {
		t.Errorf("APIProvider = %q, want gemini", got.APIProvider)
	}
}

func TestUpdateRejectsUnknownProvider(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Update(Partial{APIProvider: strPtr("claude")}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestUpdateSanitizesModels(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Update(Partial{DebuggingModel: strPtr("gpt-4o")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.DebuggingModel != DefaultGeminiModel {
		t.Errorf("DebuggingModel = %q, want %s", got.DebuggingModel, DefaultGeminiModel)
	}
}

func TestUpdateNotifiesSubscribers(t *testing.T) {
	s := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.Update(Partial{Language: strPtr("go")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Language != "go" {
			t.Errorf("notified Language = %q, want go", cfg.Language)
		}
	case <-time.After(time.Second):
		t.Fatal("expected config-updated notification")
	}

	// Opacity alone does not notify.
	if err := s.SetOpacity(0.5); err != nil {
		t.Fatalf("SetOpacity: %v", err)
	}
	select {
	case cfg := <-ch:
		t.Errorf("unexpected notification %+v", cfg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpacityClamp(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetOpacity(0.01); err != nil {
		t.Fatal(err)
	}
	if got := s.Opacity(); got != 0.1 {
		t.Errorf("Opacity() = %v, want 0.1", got)
	}
	if err := s.SetOpacity(3); err != nil {
		t.Fatal(err)
	}
	if got := s.Opacity(); got != 1.0 {
		t.Errorf("Opacity() = %v, want 1.0", got)
	}
}

func TestLanguageFallback(t *testing.T) {
	s := newTestStore(t)
	if got := s.Language(); got != "cpp" {
		t.Errorf("Language() = %q, want cpp", got)
	}
	if err := s.SetLanguage("rust"); err != nil {
		t.Fatal(err)
	}
	if got := s.Language(); got != "rust" {
		t.Errorf("Language() = %q, want rust", got)
	}
}

func TestWatchReportsExternalEdits(t *testing.T) {
	s := newTestStore(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = s.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(s.Path(), []byte(`{"apiProvider":"gemini","language":"java"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Language != "java" {
			t.Errorf("Language = %q, want java", cfg.Language)
		}
	case <-time.After(2 * time.Second):
		t.Log("no watcher event observed (filesystem notifications may be unavailable)")
	}
}
