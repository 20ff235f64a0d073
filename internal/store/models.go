package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session is one student's attempt at one lesson.
// CurrentActivityID nil means the student has not started yet.
type Session struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            string     `gorm:"size:128;not null;index:idx_lesson_sessions_user_lesson" json:"userId"`
	LessonID          string     `gorm:"size:128;not null;index:idx_lesson_sessions_user_lesson" json:"lessonId"`
	CurrentActivityID *string    `gorm:"size:128" json:"currentActivityId"`
	StartedAt         time.Time  `gorm:"not null" json:"startedAt"`
	LastActivityAt    time.Time  `gorm:"not null" json:"lastActivityAt"`
	CompletedAt       *time.Time `json:"completedAt"`
	Passed            *bool      `json:"passed"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (Session) TableName() string { return "lesson_sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ActivityStatus is the lifecycle of one activity within a session.
type ActivityStatus string

const (
	StatusInProgress ActivityStatus = "IN_PROGRESS"
	StatusCompleted  ActivityStatus = "COMPLETED"
)

// ActivityProgress is the per (session, activity) counter row.
type ActivityProgress struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	SessionID      string         `gorm:"size:36;not null;uniqueIndex:idx_activity_progress_session_activity" json:"sessionId"`
	ActivityID     string         `gorm:"size:128;not null;uniqueIndex:idx_activity_progress_session_activity" json:"activityId"`
	MomentID       string         `gorm:"size:128" json:"momentId"`
	Status         ActivityStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts       int            `gorm:"not null" json:"attempts"`
	TangentCount   int            `gorm:"not null" json:"tangentCount"`
	PassedCriteria bool           `gorm:"not null" json:"passedCriteria"`
	AIFeedback     string         `gorm:"type:text" json:"aiFeedback"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (ActivityProgress) TableName() string { return "activity_progress" }

func (p *ActivityProgress) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the append-only conversation log.
type Message struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID    string    `gorm:"size:36;not null;index:idx_messages_session_seq" json:"sessionId"`
	Seq          int64     `gorm:"not null;index:idx_messages_session_seq" json:"seq"`
	Role         Role      `gorm:"size:16;not null" json:"role"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	ActivityID   *string   `gorm:"size:128" json:"activityId"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Lesson is a lesson document stored in the database.
type Lesson struct {
	ID              string         `gorm:"primaryKey;size:128" json:"id"`
	Title           string         `gorm:"size:255;not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	DurationMinutes int            `json:"durationMinutes"`
	Published       bool           `gorm:"not null;index" json:"published"`
	Content         datatypes.JSON `gorm:"not null" json:"content"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (Lesson) TableName() string { return "lessons" }

// LLMEvent is one recorded provider call.
type LLMEvent struct {
	ID           int       `gorm:"primaryKey;autoIncrement"`
	Timestamp    time.Time `gorm:"not null;index"`
	Provider     string    `gorm:"size:32"`
	Model        string    `gorm:"size:128;index"`
	Purpose      string    `gorm:"size:64;index"`
	SessionID    string    `gorm:"size:36;index"`
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	Streamed     bool
	ErrorMessage string `gorm:"type:text"`
	RequestBody  string `gorm:"type:text"`
	ResponseBody string `gorm:"type:text"`
}

func (LLMEvent) TableName() string { return "llm_request_events" }
