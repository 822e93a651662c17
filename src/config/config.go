package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix     = "SHADOW_AI"
	EnvPathEnvVar = "SHADOW_AI_ENV"
	dataDirName   = "shadow-ai"
)

type LoadOptions struct {
	DataDirOverride string
	EnvPathOverride string
}

// Hotkeys holds the global key bindings. An empty binding disables it.
type Hotkeys struct {
	Screenshot   string `envconfig:"HOTKEY_SCREENSHOT" default:"Ctrl+H"`
	Process      string `envconfig:"HOTKEY_PROCESS" default:"Ctrl+Enter"`
	Reset        string `envconfig:"HOTKEY_RESET" default:"Ctrl+R"`
	DeleteLast   string `envconfig:"HOTKEY_DELETE_LAST" default:"Ctrl+L"`
	ToggleWindow string `envconfig:"HOTKEY_TOGGLE_WINDOW" default:"Ctrl+B"`
}

// Settings are the process-level bootstrap values. They come from the
// environment (optionally seeded by a .env file) and are fixed for the
// lifetime of the process, unlike the user Config persisted by Store.
type Settings struct {
	DataDir             string  `envconfig:"DATA_DIR"`
	EnableFileLogging   bool    `envconfig:"ENABLE_FILE_LOGGING" default:"false"`
	ControlPortStart    int     `envconfig:"CONTROL_PORT_START" default:"49600"`
	ControlPortEnd      int     `envconfig:"CONTROL_PORT_END" default:"49650"`
	RequestsPerSecond   float64 `envconfig:"LLM_RPS" default:"0"`
	Burst               int     `envconfig:"LLM_BURST" default:"1"`
	RequestTimeoutSec   int     `envconfig:"REQUEST_TIMEOUT_SEC" default:"60"`
	MaxRetries          int     `envconfig:"MAX_RETRIES" default:"2"`
	CopyCodeToClipboard bool    `envconfig:"COPY_CODE_TO_CLIPBOARD" default:"false"`
	Hotkeys

	EnvPath string `ignored:"true"`
}

func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// ConfigPath is the location of the persisted user config.
func (s Settings) ConfigPath() string {
	return filepath.Join(s.DataDir, "config.json")
}

func LoadSettings() (*Settings, error) {
	return LoadSettingsWithOptions(LoadOptions{})
}

func LoadSettingsWithOptions(opts LoadOptions) (*Settings, error) {
	// Load configuration from sources in priority order:
	// 1) explicit --env path
	// 2) .env in the application (executable) directory
	// 3) SHADOW_AI_ENV pointing at a file
	envPath := resolveEnvPath(opts)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	s.EnvPath = envPath

	if override := strings.TrimSpace(opts.DataDirOverride); override != "" {
		s.DataDir = override
	}
	if s.DataDir == "" {
		s.DataDir = defaultDataDir()
	}

	if s.ControlPortStart < 1024 {
		s.ControlPortStart = 1024
	}
	if s.ControlPortEnd > 65535 {
		s.ControlPortEnd = 65535
	}
	if s.ControlPortEnd < s.ControlPortStart {
		s.ControlPortStart, s.ControlPortEnd = s.ControlPortEnd, s.ControlPortStart
	}
	if s.RequestTimeoutSec <= 0 {
		s.RequestTimeoutSec = 60
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}

	return &s, nil
}

func resolveEnvPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.EnvPathOverride); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, dataDirName)
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, dataDirName)
	}
	return dataDirName
}
