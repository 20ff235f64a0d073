package tutor

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrActivityNotFound = errors.New("current activity not found in lesson")
	ErrSessionBusy      = errors.New("session is already processing a message")
	ErrDevOnly          = errors.New("only available in development")
	ErrEmptyMessage     = errors.New("message is empty")
)

// User-visible texts for failures after streaming has started. The cause
// is logged, never shown.
const (
	msgGenerationFailed = "Something went wrong while generating the reply. Please try again."
	msgPersistFailed    = "Your last message could not be saved. Please send it again."
)
