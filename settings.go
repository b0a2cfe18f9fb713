package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
)

// Settings represents user-configurable settings stored in ~/.vantage/settings.json
type Settings struct {
	Model    ModelSettings    `json:"model"`
	Endpoint EndpointSettings `json:"endpoint"`
	Prompt   PromptSettings   `json:"prompt"`
	History  HistorySettings  `json:"history"`
	Theme    ThemeSettings    `json:"theme"`
}

// ModelSettings configures which local model performs the analysis
type ModelSettings struct {
	// Name is the Ollama model identifier, e.g. "qwen2.5-coder:7b"
	Name string `json:"name"`
}

// EndpointSettings configures the local model server
type EndpointSettings struct {
	URL string `json:"url"`
	// ConnectTimeout bounds connection setup and the wait for response headers,
	// e.g. "5m". It never limits the stream itself.
	ConnectTimeout string `json:"connectTimeout"`
}

// PromptSettings configures prompt size budgets
type PromptSettings struct {
	MaxChars        int `json:"maxChars"`
	MinContextChars int `json:"minContextChars"`
}

// HistorySettings configures the analysis history database
type HistorySettings struct {
	// Path is the SQLite file; empty disables history
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// ThemeSettings configures the UI appearance
type ThemeSettings struct {
	Name string `json:"name"`
}

// ThemePreset defines colors for a complete theme
type ThemePreset struct {
	Title     string
	Reasoning string
	Answer    string
	Success   string
	Error     string
	Warning   string
	Dim       string
}

// DefaultSettings returns the default settings
func DefaultSettings() *Settings {
	return &Settings{
		Model: ModelSettings{
			Name: DefaultModel,
		},
		Endpoint: EndpointSettings{
			URL:            DefaultEndpoint,
			ConnectTimeout: DefaultConnectTimeout.String(),
		},
		Prompt: PromptSettings{
			MaxChars:        MaxPromptChars,
			MinContextChars: MinContextChars,
		},
		History: HistorySettings{
			Enabled: true,
		},
		Theme: ThemeSettings{
			Name: "default",
		},
	}
}

// SettingsPath returns the path to the settings file
func SettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vantage", "settings.json"), nil
}

// LoadSettings loads settings from ~/.vantage/settings.json
// Returns default settings if the file doesn't exist or can't be read
func LoadSettings() (*Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return DefaultSettings(), nil //nolint:nilerr // intentional: return defaults when path unavailable
	}
	return LoadSettingsFrom(path)
}

// LoadSettingsFrom loads settings from a specific path, keeping defaults for missing fields
func LoadSettingsFrom(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, err
	}

	if err := json.Unmarshal(data, settings); err != nil {
		return DefaultSettings(), err
	}

	return settings, nil
}

// SaveSettings saves settings to ~/.vantage/settings.json
func SaveSettings(settings *Settings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	return SaveSettingsTo(path, settings)
}

// SaveSettingsTo writes settings to a specific path
func SaveSettingsTo(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ThemePresets contains all available theme presets (ANSI 256 color numbers)
var ThemePresets = map[string]ThemePreset{
	"default": {
		Title:     "12",
		Reasoning: "8",
		Answer:    "15",
		Success:   "10",
		Error:     "9",
		Warning:   "11",
		Dim:       "8",
	},
	"matrix": {
		Title:     "46",
		Reasoning: "22",
		Answer:    "46",
		Success:   "46",
		Error:     "22",
		Warning:   "46",
		Dim:       "22",
	},
	"solarized": {
		Title:     "33",
		Reasoning: "245",
		Answer:    "230",
		Success:   "64",
		Error:     "160",
		Warning:   "136",
		Dim:       "245",
	},
	"gruvbox": {
		Title:     "208",
		Reasoning: "246",
		Answer:    "223",
		Success:   "142",
		Error:     "167",
		Warning:   "214",
		Dim:       "246",
	},
	"dracula": {
		Title:     "141",
		Reasoning: "61",
		Answer:    "255",
		Success:   "84",
		Error:     "210",
		Warning:   "212",
		Dim:       "61",
	},
	"nord": {
		Title:     "67",
		Reasoning: "60",
		Answer:    "255",
		Success:   "108",
		Error:     "174",
		Warning:   "222",
		Dim:       "60",
	},
}

// Theme provides lipgloss styles based on settings
type Theme struct {
	Title     lipgloss.Style
	Reasoning lipgloss.Style
	Answer    lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Warning   lipgloss.Style
	Dim       lipgloss.Style
}

// NewTheme creates a theme from settings
func NewTheme(settings *ThemeSettings) *Theme {
	preset, ok := ThemePresets[settings.Name]
	if !ok {
		preset = ThemePresets["default"]
	}
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return &Theme{
		Title:     fg(preset.Title).Bold(true),
		Reasoning: fg(preset.Reasoning).Italic(true),
		Answer:    fg(preset.Answer),
		Success:   fg(preset.Success),
		Error:     fg(preset.Error),
		Warning:   fg(preset.Warning),
		Dim:       fg(preset.Dim),
	}
}

// AvailableThemes returns the list of available theme names
func AvailableThemes() []string {
	return []string{"default", "matrix", "solarized", "gruvbox", "dracula", "nord"}
}
