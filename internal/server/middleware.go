package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/instructoria/internal/ratelimit"
)

// rateLimit caps requests per authenticated user under p. Limiter
// failures let the request through.
func (s *Server) rateLimit(p ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || p.Limit <= 0 {
			c.Next()
			return
		}
		uid := userID(c)
		res, err := s.limiter.Allow(c.Request.Context(), uid, p)
		if err != nil {
			s.log.Warn("http.rate_limit_unavailable", "user_id", uid, "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			wait := res.RetryAfter(time.Now())
			secs := int(wait / time.Second)
			c.Header("Retry-After", strconv.Itoa(secs))
			s.log.Info("http.rate_limited", "user_id", uid, "retry_after_s", secs)
			respondError(c, http.StatusTooManyRequests, "rate_limited",
				fmt.Sprintf("Too many messages. Try again in %d seconds.", secs))
			return
		}
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"user_id", userID(c),
		)
	}
}
