package tutor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/abhisek/instructoria/internal/store"
)

// devAllowed gates destructive tooling. Operators (empty userID) are always
// allowed; students only in development.
func (s *Service) devAllowed(userID string) error {
	if userID != "" && !s.cfg.DevMode {
		return ErrDevOnly
	}
	return nil
}

// Reset deletes the session's messages and progress and returns it to the
// not-started state.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) error {
	if err := s.devAllowed(userID); err != nil {
		return err
	}
	if !s.locks.tryLock(sessionID) {
		return ErrSessionBusy
	}
	defer s.locks.unlock(sessionID)

	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.Sessions().Reset(ctx, sess.ID); err != nil {
		return err
	}
	s.log.Warn("session.reset", "session_id", sess.ID, "user_id", userID)
	return nil
}

// Transcript is the full record of a session for debugging.
type Transcript struct {
	SessionID       string                   `json:"sessionId"`
	LessonTitle     string                   `json:"lessonTitle"`
	StartedAt       time.Time                `json:"startedAt"`
	State           string                   `json:"state"`
	TotalActivities int                      `json:"totalActivities"`
	Activities      []store.ActivityProgress `json:"activities"`
	Messages        []TranscriptEntry        `json:"messages"`

	positions map[string]int
	topics    map[string]string
}

// TranscriptEntry is one message in a transcript.
type TranscriptEntry struct {
	Role       store.Role `json:"role"`
	Content    string     `json:"content"`
	ActivityID string     `json:"activityId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Transcript returns the session's messages and progress rows.
func (s *Service) Transcript(ctx context.Context, userID, sessionID string) (*Transcript, error) {
	if err := s.devAllowed(userID); err != nil {
		return nil, err
	}
	sess, doc, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().List(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Progress().ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	t := &Transcript{
		SessionID:       sess.ID,
		LessonTitle:     doc.Metadata.Title,
		StartedAt:       sess.StartedAt,
		State:           StateOf(sess).Phase.String(),
		TotalActivities: doc.TotalActivities(),
		Activities:      rows,
		positions:       make(map[string]int),
		topics:          make(map[string]string),
	}
	for loc := range doc.All() {
		t.positions[loc.Activity.ID] = loc.Position
		t.topics[loc.Activity.ID] = loc.Activity.Teaching.MainTopic
	}
	for _, m := range msgs {
		e := TranscriptEntry{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
		if m.ActivityID != nil {
			e.ActivityID = *m.ActivityID
		}
		t.Messages = append(t.Messages, e)
	}
	return t, nil
}

// Render writes the transcript as plain text with a marker line wherever
// the activity in scope changes.
func (t *Transcript) Render(w io.Writer) error {
	bw := &errWriter{w: w}
	bw.printf("Lesson: %s\nSession: %s\nStarted: %s\nState: %s\n",
		t.LessonTitle, t.SessionID, t.StartedAt.Format(time.RFC3339), t.State)

	if len(t.Activities) > 0 {
		bw.printf("\nProgress:\n")
		for _, p := range t.Activities {
			bw.printf("  %-20s %-12s attempts=%d tangents=%d\n", p.ActivityID, p.Status, p.Attempts, p.TangentCount)
		}
	}

	current := "\x00"
	for _, m := range t.Messages {
		if m.ActivityID != current {
			current = m.ActivityID
			if current == "" {
				bw.printf("\n=== Wrap-up ===\n")
			} else {
				bw.printf("\n=== Activity %d/%d: %s (%s) ===\n", t.positions[current], t.TotalActivities, t.topics[current], current)
			}
		}
		bw.printf("\n[%s] %s:\n%s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
	}
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
