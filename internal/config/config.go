package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	User      User      `yaml:"user"`
	Sources   Sources   `yaml:"sources"`
	LLM       LLM       `yaml:"llm"`
	Providers Providers `yaml:"providers"`
	Cache     Cache     `yaml:"cache"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type User struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

// Feed is one activity feed to ingest interactions from.
type Feed struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type LLM struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIKeyEnv    string `yaml:"openai_key_env"`
	AnthropicModel  string `yaml:"anthropic_model"`
	AnthropicKeyEnv string `yaml:"anthropic_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type Providers struct {
	Search  SearchProvider `yaml:"search"`
	Video   KeyedProvider  `yaml:"video"`
	Events  KeyedProvider  `yaml:"events"`
	Weather Toggle         `yaml:"weather"`
	Geocode Toggle         `yaml:"geocode"`
}

type SearchProvider struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type KeyedProvider struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Toggle struct {
	Enabled bool `yaml:"enabled"`
}

type Cache struct {
	Dir        string `yaml:"dir"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// TTL returns the configured cache TTL, or zero when unset so the cache
// falls back to its own default.
func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type Pipeline struct {
	RetryAttempts   int `yaml:"retry_attempts"`
	RetryDelayMS    int `yaml:"retry_delay_ms"`
	SearchBatchSize int `yaml:"search_batch_size"`
	SearchPauseMS   int `yaml:"search_pause_ms"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for driftboard.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "driftboard")
}

// DataDir returns the XDG data directory for driftboard.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "driftboard")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/driftboard/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'driftboard init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config file, applying defaults for unset fields.
// A .env file next to the config is loaded first so key env vars resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses config bytes, applying defaults for unset fields.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	return Parse(DefaultConfigYAML)
}

// WriteDefault writes the embedded default config to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, DefaultConfigYAML, 0o644)
}

func (c *Config) applyDefaults() {
	if c.User.ID == "" {
		c.User.ID = "default"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.1"
	}
	if c.LLM.OpenAIModel == "" {
		c.LLM.OpenAIModel = "gpt-4o-mini"
	}
	if c.LLM.OpenAIKeyEnv == "" {
		c.LLM.OpenAIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.AnthropicModel == "" {
		c.LLM.AnthropicModel = "claude-sonnet-4-20250514"
	}
	if c.LLM.AnthropicKeyEnv == "" {
		c.LLM.AnthropicKeyEnv = "ANTHROPIC_API_KEY"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.Output.DataDir == "" {
		c.Output.DataDir = DataDir()
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.Output.DataDir, "cache")
	}
	if c.Cache.TTLMinutes == 0 {
		c.Cache.TTLMinutes = 30
	}
	if c.Pipeline.RetryAttempts == 0 {
		c.Pipeline.RetryAttempts = 3
	}
	if c.Pipeline.RetryDelayMS == 0 {
		c.Pipeline.RetryDelayMS = 1000
	}
	if c.Pipeline.SearchBatchSize == 0 {
		c.Pipeline.SearchBatchSize = 2
	}
	if c.Pipeline.SearchPauseMS == 0 {
		c.Pipeline.SearchPauseMS = 500
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8710
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
