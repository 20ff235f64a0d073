package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2,
	}
}

const gradedVerdict = `{"completed":true,"criteriaMatched":["names the base case"],"criteriaMissing":[],"feedback":"ok","confidence":"high"}`

func unavailable() MockResponse {
	return MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("overloaded")}}
}

func malformed() MockResponse {
	return MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`{"completed":`), Err: errors.New("unexpected end")}}
}

func TestRetry_Generate(t *testing.T) {
	tests := []struct {
		name      string
		responses []MockResponse
		wantErr   bool
		wantCalls int
	}{
		{"first attempt", []MockResponse{MockText(gradedVerdict)}, false, 1},
		{"outage then success", []MockResponse{unavailable(), MockText(gradedVerdict)}, false, 2},
		{"outage exhausts attempts", []MockResponse{unavailable(), unavailable(), unavailable(), MockText(gradedVerdict)}, true, 3},
		{"throttled with hint", []MockResponse{{Err: &ErrRateLimit{RetryAfter: time.Millisecond, Err: errors.New("429")}}, MockText(gradedVerdict)}, false, 2},
		{"malformed output repaired", []MockResponse{malformed(), MockText(gradedVerdict)}, false, 2},
		{"malformed output twice", []MockResponse{malformed(), malformed(), MockText(gradedVerdict)}, true, 2},
		{"token ceiling is final", []MockResponse{{Err: &ErrMaxTokensExceeded{Content: json.RawMessage(`{"completed":tr`)}}}, true, 1},
		{"plain network error", []MockResponse{{Err: fmt.Errorf("dial tcp: connection refused")}, MockText(gradedVerdict)}, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			p := WithRetry(mock, retryConfig(), nil)

			resp, err := p.Generate(WithPurpose(context.Background(), "verification"), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && resp.Text() != gradedVerdict {
				t.Fatalf("content = %s", resp.Content)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}
}

func TestRetry_KeepsErrorType(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrMaxTokensExceeded{Content: json.RawMessage(`{}`)}})
	_, err := WithRetry(mock, retryConfig(), nil).Generate(context.Background(), Request{})
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) {
		t.Fatalf("got %T", err)
	}
}

func TestRetry_StopsWhenCancelledDuringBackoff(t *testing.T) {
	mock := NewMockProvider(unavailable(), MockText("never"))
	cfg := retryConfig()
	cfg.InitialWait = time.Hour
	cfg.MaxWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithRetry(mock, cfg, nil).Generate(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("calls = %d", mock.CallCount())
	}
}

func TestRetry_ZeroAttemptsStillCalls(t *testing.T) {
	mock := NewMockProvider(unavailable())
	_, err := WithRetry(mock, RetryConfig{}, nil).Generate(context.Background(), Request{})
	if err == nil || mock.CallCount() != 1 {
		t.Fatalf("err = %v after %d calls", err, mock.CallCount())
	}
}

func TestRetry_Backoff(t *testing.T) {
	r := &RetryProvider{cfg: RetryConfig{InitialWait: 100 * time.Millisecond, MaxWait: time.Second, Multiplier: 2}}
	plain := errors.New("boom")
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond, 6: time.Second} {
		got := r.backoff(attempt, plain)
		lo, hi := time.Duration(float64(base)*0.8), time.Duration(float64(base)*1.2)
		if got < lo || got > hi {
			t.Errorf("attempt %d: wait %s outside [%s, %s]", attempt, got, lo, hi)
		}
	}
	hinted := &ErrRateLimit{RetryAfter: 3 * time.Second}
	if got := r.backoff(1, hinted); got != 3*time.Second {
		t.Errorf("hint ignored: %s", got)
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("stream: %w", context.DeadlineExceeded), false},
		{&ErrMaxTokensExceeded{}, false},
		{&ErrInvalidResponse{Err: errors.New("x")}, false},
		{&ErrRateLimit{Err: errors.New("x")}, true},
		{&ErrProviderUnavailable{}, true},
		{errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		if got := Transient(tt.err); got != tt.want {
			t.Errorf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetry_ModelID(t *testing.T) {
	if id := WithRetry(NewMockProvider(), retryConfig(), nil).ModelID(); id != "mock" {
		t.Fatalf("ModelID = %q", id)
	}
}
