package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), model: "gpt-4o-mini"}
}

func TestOpenAIProvider_GenerateWithSchema(t *testing.T) {
	var sent struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ResponseFormat *struct {
			JSONSchema struct {
				Name string `json:"name"`
			} `json:"json_schema"`
		} `json:"response_format"`
	}
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"completed":true,"matched":["uses a base case"]}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
		})
	})

	resp, err := p.Generate(context.Background(), Request{
		System:    "Grade the answer.",
		Messages:  []Message{{Role: RoleUser, Content: "It stops at n == 0."}},
		MaxTokens: 256,
		Schema:    rubricSchema(),
	})
	require.NoError(t, err)

	require.Len(t, sent.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, sent.Messages[0].Role)
	assert.Equal(t, "Grade the answer.", sent.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, sent.Messages[1].Role)
	require.NotNil(t, sent.ResponseFormat)
	assert.Equal(t, "rubric-check", sent.ResponseFormat.JSONSchema.Name)

	assert.Equal(t, Usage{InputTokens: 40, OutputTokens: 25, TotalTokens: 65}, resp.Usage)
	assert.Equal(t, "end", resp.StopReason)
}

func TestOpenAIProvider_GenerateRejectsOffSchema(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"completed\":\"maybe\"}"},"finish_reason":"stop"}]}`))
	})
	_, err := p.Generate(context.Background(), Request{MaxTokens: 32, Schema: rubricSchema()})
	var inv *ErrInvalidResponse
	require.True(t, errors.As(err, &inv), "%T", err)
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		target any
	}{
		{http.StatusTooManyRequests, new(*ErrRateLimit)},
		{http.StatusServiceUnavailable, new(*ErrProviderUnavailable)},
		{http.StatusNotFound, new(*ErrRejected)},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"type":"x","message":"nope","code":"x"}}`))
			})
			_, err := p.Generate(context.Background(), Request{MaxTokens: 16})
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"})
	require.Error(t, err)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o", BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.ModelID())
}
