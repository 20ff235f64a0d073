package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error

	// Chunks are delivered one by one by Stream. When empty, Stream
	// delivers Content as a single chunk.
	Chunks []string

	// StreamErr is returned by Stream after every chunk was delivered,
	// simulating a connection that drops mid-generation.
	StreamErr error
}

// MockText is a convenience for a plain-text canned response.
func MockText(text string) MockResponse {
	return MockResponse{Content: json.RawMessage(text)}
}

// MockStream is a convenience for a streamed response made of chunks.
func MockStream(chunks ...string) MockResponse {
	return MockResponse{Chunks: chunks}
}

// MockProvider is a deterministic Provider for testing.
// It returns canned responses in FIFO order and records all requests.
// Generate and Stream share the same queue.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty.
func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	content := resp.Content
	if content == nil && len(resp.Chunks) > 0 {
		content = json.RawMessage(strings.Join(resp.Chunks, ""))
	}
	return &Response{
		Content:    content,
		Usage:      resp.Usage,
		Model:      m.modelFor(req),
		StopReason: "end",
	}, nil
}

// Stream delivers the next canned response chunk by chunk.
func (m *MockProvider) Stream(ctx context.Context, req Request, fn StreamFunc) (*Response, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	chunks := resp.Chunks
	if len(chunks) == 0 && len(resp.Content) > 0 {
		chunks = []string{string(resp.Content)}
	}

	var text strings.Builder
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text.WriteString(c)
		if err := fn(c); err != nil {
			return nil, err
		}
	}
	if resp.StreamErr != nil {
		return nil, resp.StreamErr
	}

	return &Response{
		Content:    json.RawMessage(text.String()),
		Usage:      resp.Usage,
		Model:      m.modelFor(req),
		StopReason: "end",
	}, nil
}

func (m *MockProvider) next(req Request) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if len(m.responses) == 0 {
		return MockResponse{}, &ErrProviderUnavailable{Err: nil}
	}

	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *MockProvider) modelFor(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return "mock"
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Generate and Stream calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or the zero Request.
func (m *MockProvider) LastCall() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}
	}
	return m.Calls[len(m.Calls)-1]
}

// Pending returns how many canned responses remain queued.
func (m *MockProvider) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}
