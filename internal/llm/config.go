package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config selects and configures the model provider.
type Config struct {
	// Provider is one of "anthropic", "openai", "gemini", "openrouter" or
	// "mock".
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds one Generate call including retries. Streams are
	// bounded by the caller. Default: 30s.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey  string
	Model   string // Default: "claude-sonnet"
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string // Default: "gpt-4o-mini"
	BaseURL string // Any OpenAI-compatible endpoint.
}

type GeminiConfig struct {
	APIKey string
	Model  string // Default: "gemini-flash"
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string // Default: "anthropic/claude-sonnet-4.5"
	BaseURL string // Default: "https://openrouter.ai/api/v1"

	// SiteURL and AppTitle are sent as attribution headers.
	SiteURL  string
	AppTitle string // Default: "Instructoria"
}

// RetryConfig is the backoff policy for transient provider failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig uses Anthropic with the chat-quality model.
func DefaultConfig() Config {
	return Config{
		Provider:   "anthropic",
		Anthropic:  AnthropicConfig{Model: "claude-sonnet"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "anthropic/claude-sonnet-4.5"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: 30 * time.Second,
	}
}

// vendor describes where one provider's settings live in Config and the
// environment.
type vendor struct {
	name     string
	envName  string // INSTRUCTORIA_<envName>_*
	stdKey   string // the vendor's own key variable
	key      func(*Config) *string
	settings map[string]func(*Config) *string
}

// vendors is in discovery priority order.
var vendors = []vendor{
	{
		name: "anthropic", envName: "ANTHROPIC", stdKey: "ANTHROPIC_API_KEY",
		key: func(c *Config) *string { return &c.Anthropic.APIKey },
		settings: map[string]func(*Config) *string{
			"MODEL":    func(c *Config) *string { return &c.Anthropic.Model },
			"BASE_URL": func(c *Config) *string { return &c.Anthropic.BaseURL },
		},
	},
	{
		name: "openai", envName: "OPENAI", stdKey: "OPENAI_API_KEY",
		key: func(c *Config) *string { return &c.OpenAI.APIKey },
		settings: map[string]func(*Config) *string{
			"MODEL":    func(c *Config) *string { return &c.OpenAI.Model },
			"BASE_URL": func(c *Config) *string { return &c.OpenAI.BaseURL },
		},
	},
	{
		name: "gemini", envName: "GEMINI", stdKey: "GEMINI_API_KEY",
		key: func(c *Config) *string { return &c.Gemini.APIKey },
		settings: map[string]func(*Config) *string{
			"MODEL": func(c *Config) *string { return &c.Gemini.Model },
		},
	},
	{
		name: "openrouter", envName: "OPENROUTER", stdKey: "OPENROUTER_API_KEY",
		key: func(c *Config) *string { return &c.OpenRouter.APIKey },
		settings: map[string]func(*Config) *string{
			"MODEL":    func(c *Config) *string { return &c.OpenRouter.Model },
			"BASE_URL": func(c *Config) *string { return &c.OpenRouter.BaseURL },
			"SITE_URL": func(c *Config) *string { return &c.OpenRouter.SiteURL },
		},
	},
}

func lookupVendor(name string) (vendor, bool) {
	for _, v := range vendors {
		if v.name == name {
			return v, true
		}
	}
	return vendor{}, false
}

// ConfigFromEnv applies INSTRUCTORIA_* variables over DefaultConfig:
// INSTRUCTORIA_LLM_PROVIDER, INSTRUCTORIA_<VENDOR>_API_KEY,
// INSTRUCTORIA_<VENDOR>_MODEL and friends, INSTRUCTORIA_LLM_MAX_ATTEMPTS and
// INSTRUCTORIA_LLM_TIMEOUT. Unparseable numbers are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if p := os.Getenv("INSTRUCTORIA_LLM_PROVIDER"); p != "" {
		cfg.Provider = p
	}
	for _, v := range vendors {
		prefix := "INSTRUCTORIA_" + v.envName + "_"
		if k := os.Getenv(prefix + "API_KEY"); k != "" {
			*v.key(&cfg) = k
		}
		for suffix, field := range v.settings {
			if val := os.Getenv(prefix + suffix); val != "" {
				*field(&cfg) = val
			}
		}
	}
	if n, err := strconv.Atoi(os.Getenv("INSTRUCTORIA_LLM_MAX_ATTEMPTS")); err == nil && n > 0 {
		cfg.Retry.MaxAttempts = n
	}
	if d, err := time.ParseDuration(os.Getenv("INSTRUCTORIA_LLM_TIMEOUT")); err == nil {
		cfg.Timeout = d
	}
	return cfg
}

// DiscoverConfig picks the first vendor whose standard key variable
// (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...) is set.
func DiscoverConfig() (Config, bool) {
	for _, v := range vendors {
		if k := os.Getenv(v.stdKey); k != "" {
			cfg := DefaultConfig()
			cfg.Provider = v.name
			*v.key(&cfg) = k
			return cfg, true
		}
	}
	return Config{}, false
}

// Validate checks the provider is known and has its key.
func (c Config) Validate() error {
	if c.Provider == "mock" {
		return nil
	}
	v, ok := lookupVendor(c.Provider)
	if !ok {
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if *v.key(&c) == "" {
		return fmt.Errorf("INSTRUCTORIA_%s_API_KEY (or %s) is required for the %s provider", v.envName, v.stdKey, v.name)
	}
	return nil
}
