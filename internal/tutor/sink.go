package tutor

import (
	"github.com/abhisek/instructoria/internal/logger"
)

// Sink receives the events of one streamed cycle. Exactly one of Done or
// Error is called last.
type Sink interface {
	Content(text string) error
	ActivityCompleted(ev CompletionEvent) error
	Done() error
	Error(message string) error
}

// CompletionEvent is emitted as soon as a verdict completes an activity.
type CompletionEvent struct {
	ActivityID        string  `json:"activityId"`
	NextActivityID    *string `json:"nextActivityId"`
	NextActivityTitle string  `json:"nextActivityTitle,omitempty"`
	CurrentPosition   int     `json:"currentPosition"`
	TotalActivities   int     `json:"totalActivities"`
	CompletedCount    int     `json:"completedCount"`
	Percentage        int     `json:"percentage"`
	IsLastActivity    bool    `json:"isLastActivity"`
}

// detachingSink stops forwarding after the first write error so the cycle
// can finish without a client.
type detachingSink struct {
	Sink
	log      *logger.Logger
	detached bool
}

func (d *detachingSink) send(event string, fn func() error) {
	if d.detached {
		return
	}
	if err := fn(); err != nil {
		d.detached = true
		d.log.Info("chat.client_detached", "event", event, "error", err)
	}
}

func (d *detachingSink) content(text string) {
	d.send("content", func() error { return d.Sink.Content(text) })
}

func (d *detachingSink) completed(ev CompletionEvent) {
	d.send("activity_completed", func() error { return d.Sink.ActivityCompleted(ev) })
}

func (d *detachingSink) done() {
	d.send("done", d.Sink.Done)
}

func (d *detachingSink) fail(message string) {
	d.send("error", func() error { return d.Sink.Error(message) })
}
