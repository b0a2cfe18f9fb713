package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultModel          = "qwen2.5-coder:7b"
	DefaultEndpoint       = "http://localhost:11434"
	DefaultConnectTimeout = 5 * time.Minute
	DefaultRenderDelay    = 500 * time.Millisecond

	// MaxPromptChars is the global ceiling on the user prompt
	MaxPromptChars = 128000
	// MinContextChars is the smallest truncated header context still worth sending
	MinContextChars = 100
)

// Config holds runtime configuration
type Config struct {
	// Model configuration
	Model    string
	Endpoint string

	// ConnectTimeout covers dialing and waiting for response headers only
	ConnectTimeout time.Duration
	// RenderDelay gives a freshly created surface time to initialise before the first push
	RenderDelay time.Duration

	// Prompt budget
	MaxPromptChars  int
	MinContextChars int

	// HistoryPath is the SQLite history database; empty disables history
	HistoryPath string

	Debug bool

	Settings *Settings
	Theme    *Theme
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	settings := DefaultSettings()
	return &Config{
		Model:           DefaultModel,
		Endpoint:        DefaultEndpoint,
		ConnectTimeout:  DefaultConnectTimeout,
		RenderDelay:     DefaultRenderDelay,
		MaxPromptChars:  MaxPromptChars,
		MinContextChars: MinContextChars,
		HistoryPath:     defaultHistoryPath(),
		Settings:        settings,
		Theme:           NewTheme(&settings.Theme),
	}
}

// LoadConfig loads settings.json and then environment overrides
func LoadConfig() *Config {
	settings, err := LoadSettings()
	if err != nil {
		// Broken settings file: fall back to defaults, env still applies
		settings = DefaultSettings()
	}
	return configFrom(settings)
}

func configFrom(settings *Settings) *Config {
	cfg := DefaultConfig()
	cfg.Settings = settings

	if settings.Model.Name != "" {
		cfg.Model = settings.Model.Name
	}
	if settings.Endpoint.URL != "" {
		cfg.Endpoint = settings.Endpoint.URL
	}
	if d, err := time.ParseDuration(settings.Endpoint.ConnectTimeout); err == nil && d > 0 {
		cfg.ConnectTimeout = d
	}
	if settings.Prompt.MaxChars > 0 {
		cfg.MaxPromptChars = settings.Prompt.MaxChars
	}
	if settings.Prompt.MinContextChars > 0 {
		cfg.MinContextChars = settings.Prompt.MinContextChars
	}
	if settings.History.Path != "" {
		cfg.HistoryPath = settings.History.Path
	}
	if !settings.History.Enabled {
		cfg.HistoryPath = ""
	}

	// Model configuration
	if val := os.Getenv("VANTAGE_MODEL"); val != "" {
		cfg.Model = val
	}
	if val := os.Getenv("VANTAGE_ENDPOINT"); val != "" {
		cfg.Endpoint = val
	}

	// Timing
	if val := os.Getenv("VANTAGE_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.ConnectTimeout = d
		}
	}
	if val := os.Getenv("VANTAGE_RENDER_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= 0 {
			cfg.RenderDelay = d
		}
	}

	// Prompt budget
	if val := os.Getenv("VANTAGE_MAX_PROMPT_CHARS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.MaxPromptChars = n
		}
	}

	if val, ok := os.LookupEnv("VANTAGE_HISTORY_DB"); ok {
		cfg.HistoryPath = val // empty disables history
	}

	if val := os.Getenv("VANTAGE_THEME"); val != "" {
		settings.Theme.Name = val
	}
	cfg.Theme = NewTheme(&settings.Theme)

	if os.Getenv("VANTAGE_DEBUG") == "1" {
		cfg.Debug = true
	}

	return cfg
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vantage", "history.db")
}
