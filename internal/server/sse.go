package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/instructoria/internal/tutor"
)

type contentEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type completedEvent struct {
	Type string `json:"type"`
	tutor.CompletionEvent
}

type terminalEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// sseSink writes tutor events as server-sent events. Headers are sent
// with the first event so that input errors can still be answered with
// a JSON error body.
type sseSink struct {
	c       *gin.Context
	started bool
}

func newSSESink(c *gin.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) Started() bool { return s.started }

func (s *sseSink) write(v any) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", raw); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) Content(text string) error {
	return s.write(contentEvent{Type: "content", Text: text})
}

func (s *sseSink) ActivityCompleted(ev tutor.CompletionEvent) error {
	return s.write(completedEvent{Type: "activity_completed", CompletionEvent: ev})
}

func (s *sseSink) Done() error {
	return s.write(terminalEvent{Type: "done"})
}

func (s *sseSink) Error(message string) error {
	return s.write(terminalEvent{Type: "error", Message: message})
}
