package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quillhq/quill/internal/defaults"

	"gopkg.in/yaml.v3"
)

// Config holds the Quill configuration shared by the host and agent processes.
type Config struct {
	// DataDir is the platform data directory
	DataDir string `yaml:"data_dir"`

	Server      ServerConfig      `yaml:"server"`
	Suggestions SuggestionsConfig `yaml:"suggestions"`
	Messenger   MessengerConfig   `yaml:"messenger"`
	Overlay     OverlayConfig     `yaml:"overlay"`
	Hub         HubConfig         `yaml:"hub"`

	// ActiveHours is a cron expression limiting when the overlay runs.
	// Empty means always active.
	ActiveHours string `yaml:"active_hours"`
}

// ServerConfig holds the loopback API settings
type ServerConfig struct {
	Port int `yaml:"port"` // Host API port, loopback only
}

// SuggestionsConfig holds reply drafting settings
type SuggestionsConfig struct {
	Provider       string `yaml:"provider"`        // "openai", "anthropic", or "ollama"
	Model          string `yaml:"model"`           // Model to use
	MaxCount       int    `yaml:"max_count"`       // Replies to request, clamped to 1..5
	TimeoutSeconds int    `yaml:"timeout_seconds"` // Deadline before canned fallback replies
	SystemPrompt   string `yaml:"system_prompt,omitempty"`
	OllamaBaseURL  string `yaml:"ollama_base_url,omitempty"` // Default: http://localhost:11434
	APIKey         string `yaml:"api_key,omitempty"`         // Prefer the system keychain; supports ${ENV} expansion
}

// MessengerConfig identifies the messaging app being watched and its store
type MessengerConfig struct {
	AppName      string `yaml:"app_name"`             // Process name the focus tracker watches
	StorePath    string `yaml:"store_path,omitempty"` // Empty means the platform default
	ContextDepth int    `yaml:"context_depth"`        // Newest messages fetched per conversation
}

// OverlayConfig holds polling cadence and window placement
type OverlayConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"` // Seconds between focus polls
	RefreshEvery        int    `yaml:"refresh_every"`         // Re-request every Nth poll while focus is unchanged
	Anchor              string `yaml:"anchor"`                // "bottom-right", "bottom-left", "top-right", "top-left"
	Width               int    `yaml:"width"`
	Height              int    `yaml:"height"`
	MarginX             int    `yaml:"margin_x"`
	MarginY             int    `yaml:"margin_y"`
}

// HubConfig holds agent process supervision settings
type HubConfig struct {
	ShutdownGraceMS  int `yaml:"shutdown_grace_ms"`  // Grace before a deactivated agent is killed
	StartupTimeoutMS int `yaml:"startup_timeout_ms"` // How long the host waits for a launched agent to connect
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Server: ServerConfig{
			Port: 4817,
		},
		Suggestions: SuggestionsConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			MaxCount:       3,
			TimeoutSeconds: 6,
			OllamaBaseURL:  "http://localhost:11434",
		},
		Messenger: MessengerConfig{
			AppName:      "Messages",
			ContextDepth: 10,
		},
		Overlay: OverlayConfig{
			PollIntervalSeconds: 1,
			RefreshEvery:        3,
			Anchor:              "bottom-right",
			Width:               380,
			Height:              96,
			MarginX:             24,
			MarginY:             48,
		},
		Hub: HubConfig{
			ShutdownGraceMS:  300,
			StartupTimeoutMS: 5000,
		},
	}
}

// DefaultDataDir returns the platform-appropriate data directory.
func DefaultDataDir() string {
	dir, err := defaults.DataDir()
	if err != nil {
		return ".quill"
	}
	return dir
}

// Load loads config from the Quill data directory's config.yaml
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Config doesn't exist, use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

// normalize expands paths and secrets and clamps values to usable ranges.
// Clamping keeps the poll/refresh relationship intact no matter what the
// config file says: the context is refreshed every Nth poll, N >= 1.
func (c *Config) normalize() {
	// Expand ~ in paths (config file may have a tilde path)
	c.DataDir = expandHome(c.DataDir)
	c.Messenger.StorePath = expandHome(c.Messenger.StorePath)

	c.Suggestions.APIKey = os.ExpandEnv(c.Suggestions.APIKey)
	c.Suggestions.OllamaBaseURL = os.ExpandEnv(c.Suggestions.OllamaBaseURL)

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = 4817
	}
	if c.Suggestions.MaxCount < 1 {
		c.Suggestions.MaxCount = 1
	}
	if c.Suggestions.MaxCount > 5 {
		c.Suggestions.MaxCount = 5
	}
	if c.Suggestions.TimeoutSeconds < 1 {
		c.Suggestions.TimeoutSeconds = 6
	}
	if c.Messenger.ContextDepth < 1 {
		c.Messenger.ContextDepth = 10
	}
	if c.Overlay.PollIntervalSeconds < 1 {
		c.Overlay.PollIntervalSeconds = 1
	}
	if c.Overlay.RefreshEvery < 1 {
		c.Overlay.RefreshEvery = 1
	}
	if c.Hub.ShutdownGraceMS < 0 {
		c.Hub.ShutdownGraceMS = 300
	}
	if c.Hub.StartupTimeoutMS < 1000 {
		c.Hub.StartupTimeoutMS = 5000
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Save saves the config to the Quill data directory's config.yaml
func (c *Config) Save() error {
	// Ensure data dir exists
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configPath := filepath.Join(c.DataDir, "config.yaml")
	return os.WriteFile(configPath, data, 0600)
}

// DBPath returns the path to the SQLite database.
// Uses <data_dir>/data/quill.db so the database sits apart from config files.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "quill.db")
}

// MessageStorePath returns the conversation store to read, falling back to
// the platform default when unset.
func (c *Config) MessageStorePath() string {
	if c.Messenger.StorePath != "" {
		return c.Messenger.StorePath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0700)
}
