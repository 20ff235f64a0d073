package tutor

import (
	"context"
	"math"
	"time"
)

// Report is the progress of one session.
type Report struct {
	SessionID            string            `json:"sessionId"`
	LessonID             string            `json:"lessonId"`
	LessonTitle          string            `json:"lessonTitle"`
	State                string            `json:"state"`
	CurrentActivityID    string            `json:"currentActivityId"`
	CurrentActivityTitle string            `json:"currentActivityTitle"`
	CurrentPosition      int               `json:"currentPosition"`
	CompletedCount       int               `json:"completedCount"`
	TotalActivities      int               `json:"totalActivities"`
	Percentage           int               `json:"percentage"`
	LastCompleted        *CompletedSummary `json:"lastCompleted"`
	CompletedAt          *time.Time        `json:"completedAt"`
	Passed               *bool             `json:"passed"`
}

// CompletedSummary describes the most recently completed activity.
type CompletedSummary struct {
	ActivityID  string     `json:"activityId"`
	Title       string     `json:"title"`
	Attempts    int        `json:"attempts"`
	Feedback    string     `json:"feedback"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Percentage returns round(completed/total*100) clamped to [0, 100].
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	p := int(math.Round(float64(completed) / float64(total) * 100))
	return min(max(p, 0), 100)
}

// Progress reports where a session stands.
func (s *Service) Progress(ctx context.Context, userID, sessionID string) (*Report, error) {
	sess, doc, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	completed, err := s.store.Progress().CompletedActivityIDs(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	total := doc.TotalActivities()
	state := StateOf(sess)

	r := &Report{
		SessionID:       sess.ID,
		LessonID:        sess.LessonID,
		LessonTitle:     doc.Metadata.Title,
		State:           state.Phase.String(),
		CompletedCount:  min(len(completed), total),
		TotalActivities: total,
		Percentage:      Percentage(len(completed), total),
		CompletedAt:     sess.CompletedAt,
		Passed:          sess.Passed,
	}

	if state.Phase != PhaseComplete {
		if cur := doc.Locate(state.ActivityID); cur != nil {
			r.CurrentActivityID = cur.Activity.ID
			r.CurrentActivityTitle = cur.Activity.Teaching.MainTopic
			r.CurrentPosition = cur.Position
		}
	} else {
		r.CurrentPosition = total
	}

	last, err := s.store.Progress().LastCompleted(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		sum := &CompletedSummary{
			ActivityID:  last.ActivityID,
			Attempts:    last.Attempts,
			Feedback:    last.AIFeedback,
			CompletedAt: last.CompletedAt,
		}
		if loc := doc.Locate(last.ActivityID); loc != nil {
			sum.Title = loc.Activity.Teaching.MainTopic
		}
		r.LastCompleted = sum
	}
	return r, nil
}
