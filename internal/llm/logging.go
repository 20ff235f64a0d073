package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/instructoria/internal/logger"
	"github.com/abhisek/instructoria/internal/store"
)

// EventRecorder persists LLM request events. store.EventRepo satisfies it.
type EventRecorder interface {
	AppendLLMRequest(ctx context.Context, data store.LLMRequestEventData) error
}

// LoggingProvider records each provider call, successful or not, with its
// purpose, session, token usage and latency.
type LoggingProvider struct {
	inner     Provider
	name      string
	eventRepo EventRecorder
	log       *logger.Logger
}

// WithLogging wraps p. name is stored with each event ("anthropic",
// "openai", ...). A nil repo only logs.
func WithLogging(p Provider, name string, repo EventRecorder, log *logger.Logger) Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingProvider{inner: p, name: name, eventRepo: repo, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	l.record(ctx, req, resp, err, start, false)
	return resp, err
}

func (l *LoggingProvider) Stream(ctx context.Context, req Request, fn StreamFunc) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Stream(ctx, req, fn)
	l.record(ctx, req, resp, err, start, true)
	return resp, err
}

func (l *LoggingProvider) record(ctx context.Context, req Request, resp *Response, err error, start time.Time, streamed bool) {
	purpose := PurposeFrom(ctx)
	sessionID := SessionFrom(ctx)
	latencyMs := time.Since(start).Milliseconds()

	model := req.Model
	if model == "" {
		model = l.inner.ModelID()
	}
	data := store.LLMRequestEventData{
		Provider:    l.name,
		Model:       model,
		Purpose:     purpose,
		SessionID:   sessionID,
		LatencyMs:   latencyMs,
		Success:     err == nil,
		Streamed:    streamed,
		RequestBody: serializeRequest(req),
	}

	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.Model = resp.Model
		data.ResponseBody = string(resp.Content)
	}

	if err != nil {
		data.ErrorMessage = err.Error()
	}

	l.log.Debug("llm.request",
		"provider", data.Provider,
		"model", data.Model,
		"purpose", purpose,
		"session_id", sessionID,
		"latency_ms", latencyMs,
		"input_tokens", data.InputTokens,
		"output_tokens", data.OutputTokens,
		"streamed", streamed,
		"success", data.Success,
	)

	if l.eventRepo == nil {
		return
	}
	// Written detached: the caller may already have gone away, and a lost
	// log row never fails the call itself.
	if logErr := l.eventRepo.AppendLLMRequest(context.WithoutCancel(ctx), data); logErr != nil {
		l.log.Warn("llm.event_log_failed", "error", logErr)
	}
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		b.WriteString(fmt.Sprintf("[%s]\n", m.Role))
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			b.WriteString(fmt.Sprintf("[schema: %s]\n", req.Schema.Name))
			b.WriteString(string(schemaDef))
			b.WriteString("\n")
		}
	}

	return b.String()
}
