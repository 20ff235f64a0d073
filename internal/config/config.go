// Package config loads service configuration from an optional YAML file
// and INSTRUCTORIA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/prompt"
	"github.com/abhisek/instructoria/internal/tutor"
	"github.com/abhisek/instructoria/internal/verify"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Auth modes.
const (
	AuthHeader = "header"
	AuthJWT    = "jwt"
)

// Config is the complete service configuration.
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Lessons   LessonsConfig   `yaml:"lessons"`
	LLM       LLMConfig       `yaml:"llm"`
	Tutor     TutorConfig     `yaml:"tutor"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LessonsConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// LLMConfig selects the provider and models. API keys are read from the
// environment only.
type LLMConfig struct {
	Provider     string `yaml:"provider"`
	ChatModel    string `yaml:"chat_model"`
	VerifyModel  string `yaml:"verify_model"`
	WelcomeModel string `yaml:"welcome_model"`
}

type TutorConfig struct {
	HistorySize           int           `yaml:"history_size"`
	ChatMaxTokens         int           `yaml:"chat_max_tokens"`
	VerifyMaxTokens       int           `yaml:"verify_max_tokens"`
	WelcomeMaxTokens      int           `yaml:"welcome_max_tokens"`
	MinAttemptsBeforeHint int           `yaml:"min_attempts_before_hint"`
	HintFrequency         int           `yaml:"hint_frequency"`
	KeywordMinLength      int           `yaml:"keyword_min_length"`
	GenerationTimeout     time.Duration `yaml:"generation_timeout"`
	VerifyTimeout         time.Duration `yaml:"verify_timeout"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type AuthConfig struct {
	Mode   string `yaml:"mode"` // header | jwt
	Secret string `yaml:"secret"`
}

type LoggingConfig struct {
	Mode string `yaml:"mode"` // development | production
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tc := tutor.DefaultConfig()
	vc := verify.DefaultConfig()
	pc := prompt.DefaultConfig()
	return &Config{
		Env: EnvDevelopment,
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Lessons:  LessonsConfig{Dir: "lessons", Watch: true},
		LLM: LLMConfig{
			ChatModel:    tc.ChatModel,
			VerifyModel:  vc.Model,
			WelcomeModel: tc.WelcomeModel,
		},
		Tutor: TutorConfig{
			HistorySize:           tc.HistorySize,
			ChatMaxTokens:         tc.ChatMaxTokens,
			VerifyMaxTokens:       vc.MaxTokens,
			WelcomeMaxTokens:      tc.WelcomeMaxTokens,
			MinAttemptsBeforeHint: pc.MinAttemptsBeforeHint,
			HintFrequency:         pc.HintFrequency,
			KeywordMinLength:      vc.KeywordMinLength,
			GenerationTimeout:     tc.GenerationTimeout,
			VerifyTimeout:         vc.Timeout,
		},
		RateLimit: RateLimitConfig{Limit: 10, Window: time.Minute},
		Auth:      AuthConfig{Mode: AuthHeader},
		Logging:   LoggingConfig{Mode: "development"},
	}
}

// Load reads path (when non-empty and present), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("INSTRUCTORIA_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("INSTRUCTORIA_ENV", &c.Env)
	str("INSTRUCTORIA_ADDR", &c.Server.Addr)
	if v := os.Getenv("INSTRUCTORIA_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	str("INSTRUCTORIA_DB_DRIVER", &c.Database.Driver)
	str("INSTRUCTORIA_DB", &c.Database.DSN)
	str("INSTRUCTORIA_REDIS_ADDR", &c.Redis.Addr)
	str("INSTRUCTORIA_REDIS_PASSWORD", &c.Redis.Password)
	num("INSTRUCTORIA_REDIS_DB", &c.Redis.DB)
	str("INSTRUCTORIA_LESSONS_DIR", &c.Lessons.Dir)
	flag("INSTRUCTORIA_LESSONS_WATCH", &c.Lessons.Watch)
	str("INSTRUCTORIA_LLM_PROVIDER", &c.LLM.Provider)
	str("INSTRUCTORIA_CHAT_MODEL", &c.LLM.ChatModel)
	str("INSTRUCTORIA_VERIFY_MODEL", &c.LLM.VerifyModel)
	str("INSTRUCTORIA_WELCOME_MODEL", &c.LLM.WelcomeModel)
	num("INSTRUCTORIA_HISTORY_SIZE", &c.Tutor.HistorySize)
	dur("INSTRUCTORIA_GENERATION_TIMEOUT", &c.Tutor.GenerationTimeout)
	num("INSTRUCTORIA_RATE_LIMIT", &c.RateLimit.Limit)
	dur("INSTRUCTORIA_RATE_WINDOW", &c.RateLimit.Window)
	str("INSTRUCTORIA_AUTH_MODE", &c.Auth.Mode)
	str("INSTRUCTORIA_JWT_SECRET", &c.Auth.Secret)
	str("INSTRUCTORIA_LOG_MODE", &c.Logging.Mode)
	flag("INSTRUCTORIA_TRACING", &c.Tracing.Enabled)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	switch c.Auth.Mode {
	case AuthHeader:
		if c.Env == EnvProduction {
			errs = append(errs, errors.New("auth.mode header is not allowed in production"))
		}
	case AuthJWT:
		if len(c.Auth.Secret) < 32 {
			errs = append(errs, errors.New("auth.secret must be at least 32 bytes for jwt"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Auth.Mode))
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.limit and rate_limit.window must be positive"))
	}
	t := c.Tutor
	if t.HistorySize < 0 {
		errs = append(errs, errors.New("tutor.history_size must not be negative"))
	}
	if t.ChatMaxTokens <= 0 || t.VerifyMaxTokens <= 0 || t.WelcomeMaxTokens <= 0 {
		errs = append(errs, errors.New("tutor token budgets must be positive"))
	}
	if t.HintFrequency <= 0 {
		errs = append(errs, errors.New("tutor.hint_frequency must be positive"))
	}
	if t.MinAttemptsBeforeHint < 1 {
		errs = append(errs, errors.New("tutor.min_attempts_before_hint must be at least 1"))
	}
	if c.Lessons.Dir == "" {
		errs = append(errs, errors.New("lessons.dir is required"))
	}
	return errors.Join(errs...)
}

// DevMode reports whether development-only tooling is enabled.
func (c *Config) DevMode() bool { return c.Env == EnvDevelopment }

// TutorConfig returns the progression controller settings.
func (c *Config) TutorConfig() tutor.Config {
	return tutor.Config{
		ChatModel:         c.LLM.ChatModel,
		WelcomeModel:      c.LLM.WelcomeModel,
		ChatMaxTokens:     c.Tutor.ChatMaxTokens,
		WelcomeMaxTokens:  c.Tutor.WelcomeMaxTokens,
		HistorySize:       c.Tutor.HistorySize,
		GenerationTimeout: c.Tutor.GenerationTimeout,
		DevMode:           c.DevMode(),
	}
}

// VerifyConfig returns the completion verifier settings.
func (c *Config) VerifyConfig() verify.Config {
	return verify.Config{
		Model:            c.LLM.VerifyModel,
		MaxTokens:        c.Tutor.VerifyMaxTokens,
		KeywordMinLength: c.Tutor.KeywordMinLength,
		Timeout:          c.Tutor.VerifyTimeout,
	}
}

// PromptConfig returns the prompt composer settings.
func (c *Config) PromptConfig() prompt.Config {
	return prompt.Config{
		MinAttemptsBeforeHint: c.Tutor.MinAttemptsBeforeHint,
		HintFrequency:         c.Tutor.HintFrequency,
	}
}

// ProviderConfig returns the LLM provider settings. Keys, base URLs and
// retry policy come from the environment. When the selected provider has
// no key, the standard vendor variables are checked. An explicit provider
// in the file wins.
func (c *Config) ProviderConfig() llm.Config {
	cfg := llm.ConfigFromEnv()
	if c.LLM.Provider == "" && cfg.Validate() != nil {
		if found, ok := llm.DiscoverConfig(); ok {
			found.Retry, found.Timeout = cfg.Retry, cfg.Timeout
			cfg = found
		}
	}
	if c.LLM.Provider != "" {
		cfg.Provider = c.LLM.Provider
	}
	return cfg
}

// AdaptModels clears Anthropic model aliases when another provider is
// selected, so that provider's configured default model is used instead.
func (c *Config) AdaptModels(provider string) {
	if provider == "anthropic" || provider == "mock" {
		return
	}
	for _, m := range []*string{&c.LLM.ChatModel, &c.LLM.VerifyModel, &c.LLM.WelcomeModel} {
		if strings.HasPrefix(*m, "claude-") {
			*m = ""
		}
	}
}
