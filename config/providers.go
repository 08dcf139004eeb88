package config

import "os"

// LoadOpenAIConfig returns the OpenAI settings with environment overrides
// (OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL, OPENAI_ORG_ID) applied.
func LoadOpenAIConfig(cfg *Config) OpenAIConfig {
	var out OpenAIConfig
	if cfg != nil {
		out = cfg.OpenAI
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		out.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		out.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		out.Model = v
	}
	if v := os.Getenv("OPENAI_ORG_ID"); v != "" {
		out.Organization = v
	}
	return out
}

// LoadOllamaConfig returns the Ollama settings with OLLAMA_HOST and
// OLLAMA_MODEL applied.
func LoadOllamaConfig(cfg *Config) OllamaConfig {
	var out OllamaConfig
	if cfg != nil {
		out = cfg.Ollama
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		out.Host = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		out.Model = v
	}
	if out.Host == "" {
		out.Host = "http://localhost:11434"
	}
	return out
}

// LoadAnthropicConfig returns the Anthropic settings with ANTHROPIC_API_KEY
// applied.
func LoadAnthropicConfig(cfg *Config) AnthropicConfig {
	var out AnthropicConfig
	if cfg != nil {
		out = cfg.Anthropic
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		out.APIKey = v
	}
	return out
}
