package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: &client, model: "claude-sonnet-4-5-20250929"}
}

func TestAnthropicProvider_GenerateSendsConversation(t *testing.T) {
	var sent struct {
		Model    string `json:"model"`
		System   []struct{ Text string }
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_1", "type": "message", "role": "assistant",
			"content":     []map[string]any{{"type": "text", "text": "A loop repeats; recursion calls itself."}},
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "max_tokens",
			"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
		})
	})

	resp, err := p.Generate(context.Background(), Request{
		Model:  "claude-haiku",
		System: "You are a patient tutor.",
		Messages: []Message{
			{Role: RoleAssistant, Content: "What is recursion?"},
			{Role: RoleUser, Content: "A function calling itself."},
		},
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "claude-haiku-4-5-20251001", sent.Model)
	require.Len(t, sent.System, 1)
	assert.Equal(t, "You are a patient tutor.", sent.System[0].Text)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, "assistant", sent.Messages[0].Role)
	assert.Equal(t, "user", sent.Messages[1].Role)

	assert.Equal(t, "A loop repeats; recursion calls itself.", resp.Text())
	assert.Equal(t, Usage{InputTokens: 50, OutputTokens: 30, TotalTokens: 80}, resp.Usage)
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestAnthropicProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{http.StatusTooManyRequests, "7", func(t *testing.T, err error) {
			var rl *ErrRateLimit
			require.True(t, errors.As(err, &rl), "%T", err)
			assert.Equal(t, 7*time.Second, rl.RetryAfter)
		}},
		{http.StatusInternalServerError, "", func(t *testing.T, err error) {
			var u *ErrProviderUnavailable
			require.True(t, errors.As(err, &u), "%T", err)
		}},
		{http.StatusUnauthorized, "", func(t *testing.T, err error) {
			var rej *ErrRejected
			require.True(t, errors.As(err, &rej), "%T", err)
			assert.Equal(t, http.StatusUnauthorized, rej.Status)
			assert.False(t, Transient(err))
		}},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
			})
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "hi"}},
				MaxTokens: 16,
			})
			tt.check(t, err)
		})
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		aliases map[string]string
		in      string
		want    string
	}{
		{anthropicModels, "claude-sonnet", "claude-sonnet-4-5-20250929"},
		{anthropicModels, "claude-haiku", "claude-haiku-4-5-20251001"},
		{anthropicModels, "claude-opus-4-5", "claude-opus-4-5"},
		{openaiModels, "gpt-4o-mini", "gpt-4o-mini"},
		{geminiModels, "gemini-flash", "gemini-2.5-flash"},
		{geminiModels, "gemini-pro", "gemini-2.5-pro"},
		{geminiModels, "gemini-2.0-flash", "gemini-2.0-flash"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveModel(tt.in, tt.aliases), tt.in)
	}
}
