package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/travel/llm"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"` // ":memory:" for a throwaway database
}

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // default: "http://localhost:11434"
	Model string `yaml:"model,omitempty"` // chat model
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"` // default: official API
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// LLMPreference is one provider/model choice. Preferences are tried in order
// and the first configured provider wins.
type LLMPreference struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	Providers   []string        `yaml:"providers,omitempty"` // enabled providers
	Preferences []LLMPreference `yaml:"preferences,omitempty"`
}

// EmbeddingsConfig selects the embedding model used for similarity search.
type EmbeddingsConfig struct {
	Provider  string `yaml:"provider,omitempty"` // "ollama", "openai" or "none"
	Model     string `yaml:"model,omitempty"`
	CacheSize int64  `yaml:"cache_size,omitempty"` // cached vectors, 0 disables the cache
}

// MemoryConfig tunes the memory store.
type MemoryConfig struct {
	SummaryThreshold  int           `yaml:"summary_threshold,omitempty"`
	RecallMaxTurns    int           `yaml:"recall_max_turns,omitempty"`
	HistoryLimit      int           `yaml:"history_limit,omitempty"`
	RetentionDays     int           `yaml:"retention_days,omitempty"`
	CleanupSchedule   string        `yaml:"cleanup_schedule,omitempty"` // cron spec
	GenerationTimeout time.Duration `yaml:"generation_timeout,omitempty"`
	EmbedTimeout      time.Duration `yaml:"embed_timeout,omitempty"`
	SummaryModel      string        `yaml:"summary_model,omitempty"` // defaults to the chat model
}

// SessionConfig controls in-process session lifetime.
type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout,omitempty"`
	JanitorInterval time.Duration `yaml:"janitor_interval,omitempty"`
}

// AgentConfig tunes chat turns.
type AgentConfig struct {
	ChatTimeout     time.Duration `yaml:"chat_timeout,omitempty"`
	MaxToolRounds   int           `yaml:"max_tool_rounds,omitempty"`
	MaxTokens       int64         `yaml:"max_tokens,omitempty"`
	MaxContextChars int           `yaml:"max_context_chars,omitempty"`
}

// SearchConfig configures web search.
type SearchConfig struct {
	SerpAPIKey string `yaml:"serpapi_api_key,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
}

// MetricsConfig configures the ops HTTP endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	File   string `yaml:"file,omitempty"` // empty logs to stderr
	Pretty bool   `yaml:"pretty,omitempty"`
}

// Config is the complete application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Anthropic  AnthropicConfig  `yaml:"anthropic,omitempty"`
	Ollama     OllamaConfig     `yaml:"ollama,omitempty"`
	OpenAI     OpenAIConfig     `yaml:"openai,omitempty"`
	Embeddings EmbeddingsConfig `yaml:"embeddings,omitempty"`
	Memory     MemoryConfig     `yaml:"memory,omitempty"`
	Session    SessionConfig    `yaml:"session,omitempty"`
	Agent      AgentConfig      `yaml:"agent,omitempty"`
	Search     SearchConfig     `yaml:"search,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{Path: "~/.travelagent/travel.db"},
		LLM: LLMConfig{
			Providers:   []string{llm.ProviderOpenAI, llm.ProviderOllama, llm.ProviderAnthropic},
			Preferences: []LLMPreference{{Provider: llm.ProviderOpenAI}, {Provider: llm.ProviderOllama}},
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: llm.DefaultOllamaModel,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   llm.DefaultOpenAIModel,
		},
		Anthropic: AnthropicConfig{Model: llm.DefaultAnthropicModel},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "mxbai-embed-large",
			CacheSize: 4096,
		},
		Memory: MemoryConfig{
			SummaryThreshold:  10,
			RecallMaxTurns:    3,
			HistoryLimit:      10,
			RetentionDays:     30,
			CleanupSchedule:   "@daily",
			GenerationTimeout: 30 * time.Second,
			EmbedTimeout:      10 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout:     30 * time.Minute,
			JanitorInterval: time.Minute,
		},
		Agent: AgentConfig{
			ChatTimeout:     60 * time.Second,
			MaxToolRounds:   5,
			MaxTokens:       1024,
			MaxContextChars: 200000,
		},
		Search: SearchConfig{Endpoint: "https://serpapi.com/search.json"},
	}
}

// GetConfigPath returns the default config file path. It can be overridden
// via the TRAVEL_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("TRAVEL_CONFIG_PATH"); envPath != "" {
		return ExpandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.travelagent/config.yaml"
	}
	return filepath.Join(homeDir, ".travelagent", "config.yaml")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := ExpandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.OpenAI = LoadOpenAIConfig(cfg)
	cfg.Ollama = LoadOllamaConfig(cfg)
	cfg.Anthropic = LoadAnthropicConfig(cfg)
	if key := os.Getenv("SERPAPI_API_KEY"); key != "" {
		cfg.Search.SerpAPIKey = key
	}
	if path := os.Getenv("TRAVEL_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
}

// Save writes cfg as YAML to path, creating the directory if needed.
func Save(cfg *Config, path string) error {
	expandedPath := ExpandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ProviderConfig returns the credentials and endpoints of every provider.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		AnthropicAPIKey: c.Anthropic.APIKey,
		OllamaHost:      c.Ollama.Host,
		OllamaModel:     c.Ollama.Model,
		OpenAIAPIKey:    c.OpenAI.APIKey,
		OpenAIBaseURL:   c.OpenAI.BaseURL,
		OpenAIModel:     c.OpenAI.Model,
		OpenAIOrg:       c.OpenAI.Organization,
	}
}

// Preferences converts the configured preferences for the provider registry.
func (c *Config) Preferences() []llm.Preference {
	prefs := make([]llm.Preference, 0, len(c.LLM.Preferences))
	for _, p := range c.LLM.Preferences {
		model := p.Model
		if model == "" && p.Provider == llm.ProviderAnthropic {
			model = c.Anthropic.Model
		}
		prefs = append(prefs, llm.Preference{Provider: p.Provider, Model: model, Temperature: p.Temperature})
	}
	return prefs
}
