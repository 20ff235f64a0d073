package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/instructoria/internal/tutor"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

// respondServiceError maps a service error to its HTTP form. Unknown
// errors are logged and shown as a generic message.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tutor.ErrEmptyMessage):
		respondError(c, http.StatusBadRequest, "empty_message", "Message must not be empty")
	case errors.Is(err, tutor.ErrSessionNotFound):
		respondError(c, http.StatusNotFound, "session_not_found", "Session not found")
	case errors.Is(err, tutor.ErrLessonNotFound):
		respondError(c, http.StatusNotFound, "lesson_not_found", "Lesson not found")
	case errors.Is(err, tutor.ErrActivityNotFound):
		respondError(c, http.StatusNotFound, "activity_not_found", "Activity not found in lesson")
	case errors.Is(err, tutor.ErrSessionBusy):
		respondError(c, http.StatusConflict, "session_busy", "A message for this session is already being processed")
	case errors.Is(err, tutor.ErrDevOnly):
		respondError(c, http.StatusForbidden, "dev_only", "Not available in production")
	default:
		s.log.Error("http.internal_error", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal", "Internal server error")
	}
}
