package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrRateLimit is returned when the provider throttles the call. RetryAfter
// is zero when the provider gave no hint.
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limit, retry in %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("provider rate limit: %v", e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse carries structured output that failed to parse or
// match its schema. Content holds what the model produced.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	if e.Err == nil {
		return "malformed model output"
	}
	return "malformed model output: " + e.Err.Error()
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable covers outages, network failures and missing
// credentials.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err == nil {
		return "model provider unavailable"
	}
	return "model provider unavailable: " + e.Err.Error()
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded means generation stopped at the token ceiling.
// Content is the partial output.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return fmt.Sprintf("model output cut off at max tokens after %d bytes", len(e.Content))
}

// ErrRejected is a 4xx answer other than 429: bad credentials, an unknown
// model or a malformed request. Repeating the call cannot help.
type ErrRejected struct {
	Status int
	Err    error
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("model provider rejected request (%d): %v", e.Status, e.Err)
}

func (e *ErrRejected) Unwrap() error { return e.Err }

// classifyStatus maps an SDK error carrying an HTTP status to one of the
// package error types. status 0 means the call never got an answer.
func classifyStatus(status int, header http.Header, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{RetryAfter: retryAfter(header), Err: err}
	case status >= 400 && status < 500 && status != http.StatusRequestTimeout:
		return &ErrRejected{Status: status, Err: err}
	default:
		return &ErrProviderUnavailable{Err: err}
	}
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Transient reports whether repeating the same call may succeed.
// Cancellation, rejections and token-ceiling errors are final; malformed output is
// left to the caller since it depends on how often it was already retried.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}
	var rejected *ErrRejected
	if errors.As(err, &rejected) {
		return false
	}
	var invalid *ErrInvalidResponse
	return !errors.As(err, &invalid)
}
