package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type startSessionRequest struct {
	LessonID string `json:"lessonId" binding:"required"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type chatRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message"`
}

func (s *Server) health(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			s.log.Error("http.health_failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "lessonId is required")
		return
	}
	sess, err := s.tutor.StartSession(c.Request.Context(), userID(c), req.LessonID)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) messages(c *gin.Context) {
	msgs, err := s.tutor.Messages(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) welcome(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "sessionId is required")
		return
	}
	sink := newSSESink(c)
	if err := s.tutor.Welcome(c.Request.Context(), userID(c), req.SessionID, sink); err != nil {
		s.streamError(c, sink, err)
	}
}

func (s *Server) chatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "sessionId is required")
		return
	}
	sink := newSSESink(c)
	if err := s.tutor.HandleMessage(c.Request.Context(), userID(c), req.SessionID, req.Message, sink); err != nil {
		s.streamError(c, sink, err)
	}
}

// streamError answers an error returned by a streaming call. Once the
// stream has started the error can only be logged.
func (s *Server) streamError(c *gin.Context, sink *sseSink, err error) {
	if sink.Started() {
		s.log.Error("http.stream_failed_after_start", "path", c.FullPath(), "error", err)
		return
	}
	s.respondServiceError(c, err)
}

func (s *Server) progress(c *gin.Context) {
	id := c.Query("sessionId")
	if id == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "sessionId is required")
		return
	}
	report, err := s.tutor.Progress(c.Request.Context(), userID(c), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) resetLesson(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "sessionId is required")
		return
	}
	if err := s.tutor.Reset(c.Request.Context(), userID(c), req.SessionID); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) transcript(c *gin.Context) {
	id := c.Query("sessionId")
	if id == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "sessionId is required")
		return
	}
	t, err := s.tutor.Transcript(c.Request.Context(), userID(c), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if err := t.Render(c.Writer); err != nil {
		s.log.Warn("http.transcript_write_failed", "session_id", id, "error", err)
	}
}
