package llm

import (
	"fmt"
	"strings"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Default chat models per provider.
const (
	DefaultAnthropicModel = "claude-haiku-4-5"
	DefaultOllamaModel    = "llama3.2:3b"
	DefaultOpenAIModel    = "gpt-4o"
	defaultOllamaHost     = "http://localhost:11434"
)

// Preference represents a single provider/model preference.
type Preference struct {
	Provider    string
	Model       string
	Temperature *float64
}

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
	Temperature  *float64
}

// String renders the key without its credential, for logs and cache keys.
func (k ClientKey) String() string {
	return strings.Join([]string{k.Provider, k.Model, k.Host, k.BaseURL, k.Organization}, "|")
}

// ProviderConfig holds the credentials and endpoints for each provider.
// It is filled from the config package so llm stays free of config imports.
type ProviderConfig struct {
	AnthropicAPIKey string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry resolves an ordered list of preferences to the first
// provider that is both enabled and configured. Client construction is left
// to the caller so provider packages can import llm.
type ProviderRegistry struct {
	mu      sync.RWMutex
	enabled []string
	config  ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry. The order of enabled
// providers is the fallback order when no preference matches.
func NewProviderRegistry(providerConfig ProviderConfig, enabledProviders []string) *ProviderRegistry {
	enabled := make([]string, 0, len(enabledProviders))
	seen := make(map[string]bool, len(enabledProviders))
	for _, p := range enabledProviders {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		enabled = append(enabled, p)
	}
	return &ProviderRegistry{
		enabled: enabled,
		config:  providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isEnabledUnlocked(provider)
}

// IsProviderConfigured checks if a provider has the credentials it needs.
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first usable preference. With no
// preferences the first enabled and configured provider is used with its
// default model.
func (r *ProviderRegistry) Resolve(prefs []Preference) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(prefs) > 0 {
		var attempted []string
		for _, pref := range prefs {
			attempted = append(attempted, pref.Provider)
			if !r.isEnabledUnlocked(pref.Provider) || !r.isProviderConfiguredUnlocked(pref.Provider) {
				continue
			}
			key, err := r.resolveProviderConfig(pref.Provider, pref.Model)
			if err != nil {
				continue
			}
			key.Temperature = pref.Temperature
			return key, nil
		}
		return nil, fmt.Errorf("no available provider from preferences %v (enabled: %v)", attempted, r.enabled)
	}

	if len(r.enabled) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	for _, p := range r.enabled {
		if !r.isProviderConfiguredUnlocked(p) {
			continue
		}
		return r.resolveProviderConfig(p, "")
	}
	return nil, fmt.Errorf("none of the enabled providers %v is configured", r.enabled)
}

func (r *ProviderRegistry) isEnabledUnlocked(provider string) bool {
	for _, p := range r.enabled {
		if p == provider {
			return true
		}
	}
	return false
}

// isProviderConfiguredUnlocked must be called with r.mu held.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		return r.config.AnthropicAPIKey != ""
	case ProviderOllama:
		// host has a default and no key is needed
		return true
	case ProviderOpenAI:
		return r.config.OpenAIAPIKey != ""
	default:
		return false
	}
}

func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		if r.config.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = r.config.AnthropicAPIKey
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		key.Host = r.config.OllamaHost
		if key.Host == "" {
			key.Host = defaultOllamaHost
		}
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			key.Model = DefaultOllamaModel
		}

	case ProviderOpenAI:
		if r.config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = r.config.OpenAIAPIKey
		key.BaseURL = r.config.OpenAIBaseURL
		key.Organization = r.config.OpenAIOrg
		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}
		if key.Model == "" {
			key.Model = DefaultOpenAIModel
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}
