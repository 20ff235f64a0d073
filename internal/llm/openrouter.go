package llm

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterTitle   = "Instructoria"
)

// OpenRouterProvider talks to OpenRouter through its OpenAI-compatible
// API. Model IDs are vendor-prefixed ("anthropic/claude-sonnet-4.5") and
// passed through unchanged.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider builds a provider that identifies the app to
// OpenRouter with the HTTP-Referer and X-Title attribution headers.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBaseURL
	}
	if cfg.AppTitle == "" {
		cfg.AppTitle = defaultOpenRouterTitle
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Transport: &attributionTransport{
		base:    http.DefaultTransport,
		referer: cfg.SiteURL,
		title:   cfg.AppTitle,
	}}

	return &OpenRouterProvider{OpenAIProvider: &OpenAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}}, nil
}

type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	req.Header.Set("X-Title", t.title)
	return t.base.RoundTrip(req)
}
