package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/instructoria/internal/logger"
)

// NewProvider builds the configured provider. Calls pass through, in
// order, the Generate timeout, retries and the request log before reaching
// the vendor SDK, so every attempt is recorded.
func NewProvider(ctx context.Context, cfg Config, events EventRecorder, log *logger.Logger) (Provider, error) {
	if cfg.Provider == "mock" {
		return NewMockProvider(), nil
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	p := WithLogging(base, cfg.Provider, events, log)
	p = WithRetry(p, cfg.Retry, log)
	return WithTimeout(p, cfg.Timeout), nil
}

type timeoutProvider struct {
	Provider
	d time.Duration
}

// WithTimeout bounds each Generate call to d. Stream is left to the
// caller, whose deadline also covers the client connection. A zero d
// returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{Provider: p, d: d}
}

func (t *timeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Provider.Generate(ctx, req)
}
