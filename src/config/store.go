package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"shadow-ai/src/logutil"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultOpenAIModel = "gpt-4o"
	DefaultGeminiModel = "gemini-2.5-flash"

	openAIKeyPrefix = "sk-"
)

var allowedModels = map[string][]string{
	ProviderOpenAI: {"gpt-5", "gpt-4o", "o4-mini"},
	ProviderGemini: {"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite"},
}

// Config is the user-editable configuration persisted as config.json.
type Config struct {
	APIKey          string  `json:"apiKey"`
	APIProvider     string  `json:"apiProvider"`
	ExtractionModel string  `json:"extractionModel"`
	SolutionModel   string  `json:"solutionModel"`
	DebuggingModel  string  `json:"debuggingModel"`
	Language        string  `json:"language"`
	Opacity         float64 `json:"opacity"`
}

// Redacted returns a copy safe to show outside the process.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = logutil.RedactKey(c.APIKey)
	}
	return c
}

// Partial is a config update; nil fields are left unchanged.
type Partial struct {
	APIKey          *string  `json:"apiKey,omitempty"`
	APIProvider     *string  `json:"apiProvider,omitempty"`
	ExtractionModel *string  `json:"extractionModel,omitempty"`
	SolutionModel   *string  `json:"solutionModel,omitempty"`
	DebuggingModel  *string  `json:"debuggingModel,omitempty"`
	Language        *string  `json:"language,omitempty"`
	Opacity         *float64 `json:"opacity,omitempty"`
}

func Default() Config {
	return Config{
		APIProvider:     ProviderGemini,
		ExtractionModel: DefaultGeminiModel,
		SolutionModel:   DefaultGeminiModel,
		DebuggingModel:  DefaultGeminiModel,
		Language:        "cpp",
		Opacity:         1.0,
	}
}

// DefaultModel returns the fallback model for a provider.
func DefaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}

// InferProvider maps an API key to a provider by its shape: the
// conventional "sk-" prefix is OpenAI, anything else is Gemini.
func InferProvider(apiKey string) string {
	if strings.HasPrefix(strings.TrimSpace(apiKey), openAIKeyPrefix) {
		return ProviderOpenAI
	}
	return ProviderGemini
}

// AllowedModels returns a copy of the provider's model allow-list.
func AllowedModels(provider string) []string {
	return append([]string(nil), allowedModels[provider]...)
}

// SanitizeModel coerces model to the provider's default when it is not on
// the provider's allow-list.
func SanitizeModel(model, provider string) string {
	allowed, ok := allowedModels[provider]
	if !ok {
		return model
	}
	for _, m := range allowed {
		if m == model {
			return model
		}
	}
	def := DefaultModel(provider)
	log.Printf("config: invalid model %q for provider %s, defaulting to %s", model, provider, def)
	return def
}

// Store persists Config to a single JSON file and notifies subscribers
// when a relevant field changes.
type Store struct {
	path string

	mu    sync.Mutex
	subs  map[int]chan Config
	next  int
	saved Config
}

func NewStore(path string) *Store {
	s := &Store{path: path, subs: make(map[int]chan Config)}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.Save(Default()); err != nil {
			log.Printf("config: failed to create default config %s: %v", path, err)
		} else {
			log.Printf("config: created default config file %s", path)
		}
	}
	return s
}

func (s *Store) Path() string { return s.path }

// Load reads the config file. Missing or unreadable files yield defaults;
// an invalid provider falls back to openai and each model is re-validated
// against the provider's allow-list.
func (s *Store) Load() Config {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := s.Save(Default()); err != nil {
				log.Printf("config: failed to write defaults: %v", err)
			}
		} else {
			log.Printf("config: failed to read %s: %v", s.path, err)
		}
		return Default()
	}

	cfg := Default()
	var raw Config
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("config: failed to parse %s: %v", s.path, err)
		return Default()
	}
	merge(&cfg, raw)

	if raw.APIProvider != ProviderOpenAI && raw.APIProvider != ProviderGemini {
		log.Printf("config: invalid API provider %q, defaulting to openai", raw.APIProvider)
		cfg.APIProvider = ProviderOpenAI
	}
	if raw.ExtractionModel != "" {
		cfg.ExtractionModel = SanitizeModel(raw.ExtractionModel, cfg.APIProvider)
	}
	if raw.SolutionModel != "" {
		cfg.SolutionModel = SanitizeModel(raw.SolutionModel, cfg.APIProvider)
	}
	if raw.DebuggingModel != "" {
		cfg.DebuggingModel = SanitizeModel(raw.DebuggingModel, cfg.APIProvider)
	}
	return cfg
}

// merge copies the non-zero fields of src into dst.
func merge(dst *Config, src Config) {
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.APIProvider != "" {
		dst.APIProvider = src.APIProvider
	}
	if src.ExtractionModel != "" {
		dst.ExtractionModel = src.ExtractionModel
	}
	if src.SolutionModel != "" {
		dst.SolutionModel = src.SolutionModel
	}
	if src.DebuggingModel != "" {
		dst.DebuggingModel = src.DebuggingModel
	}
	if src.Language != "" {
		dst.Language = src.Language
	}
	if src.Opacity != 0 {
		dst.Opacity = src.Opacity
	}
}

// Save writes cfg atomically.
func (s *Store) Save(cfg Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}
	s.mu.Lock()
	s.saved = cfg
	s.mu.Unlock()
	return nil
}

func (s *Store) lastSaved() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Update applies a partial update and returns the resulting config.
//
// The provider is the explicit one, else the one inferred from a new API
// key, else the current one. Switching provider resets all models to the
// provider default before any explicit model in the update is applied.
func (s *Store) Update(u Partial) (Config, error) {
	current := s.Load()
	next := current

	provider := current.APIProvider
	if u.APIProvider != nil && *u.APIProvider != "" {
		provider = *u.APIProvider
	} else if u.APIKey != nil && strings.TrimSpace(*u.APIKey) != "" {
		provider = InferProvider(*u.APIKey)
		log.Printf("config: detected %s API key, setting provider", provider)
	}
	if provider != ProviderOpenAI && provider != ProviderGemini {
		return current, fmt.Errorf("unknown provider %q", provider)
	}
	next.APIProvider = provider

	providerChanged := provider != current.APIProvider
	if providerChanged {
		def := DefaultModel(provider)
		next.ExtractionModel, next.SolutionModel, next.DebuggingModel = def, def, def
	}

	if u.APIKey != nil {
		next.APIKey = strings.TrimSpace(*u.APIKey)
	}
	if u.ExtractionModel != nil && *u.ExtractionModel != "" {
		next.ExtractionModel = SanitizeModel(*u.ExtractionModel, provider)
	}
	if u.SolutionModel != nil && *u.SolutionModel != "" {
		next.SolutionModel = SanitizeModel(*u.SolutionModel, provider)
	}
	if u.DebuggingModel != nil && *u.DebuggingModel != "" {
		next.DebuggingModel = SanitizeModel(*u.DebuggingModel, provider)
	}
	if u.Language != nil {
		next.Language = *u.Language
	}
	if u.Opacity != nil {
		next.Opacity = clampOpacity(*u.Opacity)
	}

	if err := s.Save(next); err != nil {
		log.Printf("config: failed to save: %v", err)
		return current, err
	}

	if u.APIKey != nil || providerChanged || u.APIProvider != nil ||
		u.ExtractionModel != nil || u.SolutionModel != nil ||
		u.DebuggingModel != nil || u.Language != nil {
		s.notify(next)
	}
	return next, nil
}

func (s *Store) HasAPIKey() bool {
	return strings.TrimSpace(s.Load().APIKey) != ""
}

func (s *Store) Opacity() float64 {
	if o := s.Load().Opacity; o != 0 {
		return o
	}
	return 1.0
}

func (s *Store) SetOpacity(opacity float64) error {
	_, err := s.Update(Partial{Opacity: &opacity})
	return err
}

func (s *Store) Language() string {
	if l := s.Load().Language; l != "" {
		return l
	}
	return "python"
}

func (s *Store) SetLanguage(language string) error {
	_, err := s.Update(Partial{Language: &language})
	return err
}

func clampOpacity(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Subscribe returns a channel receiving the config after each relevant
// change, and a function that cancels the subscription.
func (s *Store) Subscribe() (<-chan Config, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan Config, 4)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) notify(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- cfg:
		default:
			// keep only the most recent pending value
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				log.Printf("config: subscriber %d not keeping up", id)
			}
		}
	}
}

// Watch reloads the file and notifies subscribers when config.json is
// written by another process. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: Save replaces the file via rename.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg := s.Load()
			if cfg == s.lastSaved() {
				continue
			}
			s.mu.Lock()
			s.saved = cfg
			s.mu.Unlock()
			log.Printf("config: %s changed on disk", s.path)
			s.notify(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}
