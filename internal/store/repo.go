package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit     int       // max results (0 = unlimited)
	Purpose   string    // exact purpose match
	SessionID string    // exact session match
	From      time.Time // timestamp >= From
	To        time.Time // timestamp <= To
}

// SessionRepo manages lesson sessions.
type SessionRepo interface {
	// Create inserts a new session. ID and timestamps are filled if empty.
	Create(ctx context.Context, s *Session) error

	// Get returns the session, or nil if it does not exist.
	Get(ctx context.Context, id string) (*Session, error)

	// FindActive returns the most recent unfinished session of a user for a
	// lesson, or nil.
	FindActive(ctx context.Context, userID, lessonID string) (*Session, error)

	// Touch records activity on the session.
	Touch(ctx context.Context, id string, at time.Time) error

	// Advance moves the session to activityID.
	Advance(ctx context.Context, id, activityID string, at time.Time) error

	// Complete marks the lesson finished and passed.
	Complete(ctx context.Context, id string, at time.Time) error

	// Reset deletes the session's messages and progress and returns it to
	// the not-started state.
	Reset(ctx context.Context, id string) error
}

// ProgressRepo manages per-activity progress rows.
type ProgressRepo interface {
	// Get returns the row for (sessionID, activityID), or nil.
	Get(ctx context.Context, sessionID, activityID string) (*ActivityProgress, error)

	// Save inserts the row when its ID is empty and updates it otherwise.
	Save(ctx context.Context, p *ActivityProgress) error

	// ListBySession returns every row of a session ordered by creation.
	ListBySession(ctx context.Context, sessionID string) ([]ActivityProgress, error)

	// CompletedActivityIDs returns ids of completed activities in
	// completion order.
	CompletedActivityIDs(ctx context.Context, sessionID string) ([]string, error)

	// LastCompleted returns the most recently completed row, or nil.
	LastCompleted(ctx context.Context, sessionID string) (*ActivityProgress, error)
}

// MessageRepo manages the conversation log.
type MessageRepo interface {
	// Append stores messages in the given order after any existing ones.
	Append(ctx context.Context, msgs ...*Message) error

	// Recent returns up to n latest messages, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]Message, error)

	// List returns the whole conversation, oldest first.
	List(ctx context.Context, sessionID string) ([]Message, error)

	// FirstAssistant returns the earliest assistant message, or nil.
	FirstAssistant(ctx context.Context, sessionID string) (*Message, error)

	// Count returns the number of messages in a session.
	Count(ctx context.Context, sessionID string) (int64, error)
}

// LessonRepo manages lesson documents stored in the database.
type LessonRepo interface {
	// Get returns the lesson, or nil if it does not exist.
	Get(ctx context.Context, id string) (*Lesson, error)

	// Save inserts or replaces a lesson.
	Save(ctx context.Context, l *Lesson) error

	// List returns every lesson ordered by id.
	List(ctx context.Context) ([]Lesson, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	SessionID    string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	Streamed     bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// PurposeUsage aggregates LLM usage for one purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates LLM usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo records and queries LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)

	// GetLLMEvent returns one event, or nil.
	GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error)

	// LLMUsageByPurpose aggregates token usage per purpose.
	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)

	// LLMUsageByModel aggregates token usage per model.
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}
