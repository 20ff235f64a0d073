package llm

import (
	"context"
	"encoding/json"
)

// Provider is a chat model. The tutor streams replies through Stream; the
// grader uses Generate.
type Provider interface {
	// Generate returns the complete reply. With req.Schema set the reply
	// is JSON that validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Stream calls fn with each text delta in order and returns the
	// accumulated reply. An error from fn abandons the stream and is
	// returned as is. req.Schema is ignored.
	Stream(ctx context.Context, req Request, fn StreamFunc) (*Response, error)

	// ModelID is the configured default model.
	ModelID() string
}

// StreamFunc receives one text delta.
type StreamFunc func(delta string) error

type Request struct {
	// Model overrides the configured model. Aliases such as
	// "claude-haiku" resolve per provider.
	Model string

	System string

	// Messages oldest first. Grading sends one user turn; tutoring sends
	// the recent history plus the student's new message.
	Messages []Message

	// Schema requests native structured output.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]; zero leaves the vendor default.
	Temperature float64
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema. Name is kebab-case
// ("completion-verdict") and doubles as the OpenAI schema name.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

type Response struct {
	// Content is the reply text, or the validated JSON document when the
	// request carried a Schema.
	Content json.RawMessage
	Usage   Usage

	// Model is what actually served the call, which may be a dated
	// snapshot of the requested alias.
	Model string

	// StopReason is "end" or "max_tokens".
	StopReason string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Text returns Content as a string. It is safe on a nil Response.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Content)
}

// finishStructured applies the Schema contract to a completed Generate
// response: truncated output is ErrMaxTokensExceeded, anything else must
// validate. Responses to schema-less requests pass through.
func finishStructured(req Request, resp *Response) (*Response, error) {
	if req.Schema == nil {
		return resp, nil
	}
	if resp.StopReason == "max_tokens" {
		return nil, &ErrMaxTokensExceeded{Content: resp.Content}
	}
	if err := ValidateResponse(req.Schema, resp.Content); err != nil {
		return nil, err
	}
	return resp, nil
}
