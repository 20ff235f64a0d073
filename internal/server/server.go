// Package server exposes the tutor over HTTP: JSON endpoints for sessions
// and progress, and server-sent event streams for chat.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/abhisek/instructoria/internal/logger"
	"github.com/abhisek/instructoria/internal/ratelimit"
	"github.com/abhisek/instructoria/internal/store"
	"github.com/abhisek/instructoria/internal/tutor"
)

// Tutor is the progression service the handlers drive.
type Tutor interface {
	StartSession(ctx context.Context, userID, lessonID string) (*store.Session, error)
	Messages(ctx context.Context, userID, sessionID string) ([]store.Message, error)
	HandleMessage(ctx context.Context, userID, sessionID, text string, sink tutor.Sink) error
	Welcome(ctx context.Context, userID, sessionID string, sink tutor.Sink) error
	Progress(ctx context.Context, userID, sessionID string) (*tutor.Report, error)
	Reset(ctx context.Context, userID, sessionID string) error
	Transcript(ctx context.Context, userID, sessionID string) (*tutor.Transcript, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// ChatRateLimit caps chat messages per user. Zero disables the check.
	ChatRateLimit ratelimit.Policy
	ServiceName   string
}

type Deps struct {
	Tutor   Tutor
	Auth    Authenticator
	Limiter ratelimit.Limiter
	DB      Pinger
	Logger  *logger.Logger
}

type Server struct {
	cfg     Config
	tutor   Tutor
	auth    Authenticator
	limiter ratelimit.Limiter
	db      Pinger
	log     *logger.Logger
	engine  *gin.Engine
}

// New builds the router. A nil Auth falls back to the X-User-ID header.
func New(d Deps, cfg Config) *Server {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Auth == nil {
		d.Auth = HeaderAuthenticator{}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "instructoria"
	}
	s := &Server{
		cfg:     cfg,
		tutor:   d.Tutor,
		auth:    d.Auth,
		limiter: d.Limiter,
		db:      d.DB,
		log:     d.Logger.With("component", "http"),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(s.cfg.ServiceName), s.requestLog())

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", userIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.health)

	api := r.Group("/api", s.requireAuth())
	{
		api.POST("/sessions", s.startSession)
		api.GET("/sessions/:id/messages", s.messages)
		api.POST("/chat/welcome", s.welcome)
		api.POST("/chat/stream", s.rateLimit(s.cfg.ChatRateLimit), s.chatStream)
		api.GET("/activity/progress", s.progress)
	}
	dev := api.Group("/dev")
	{
		dev.POST("/reset-lesson", s.resetLesson)
		dev.GET("/transcript", s.transcript)
	}
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http.listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info("http.shutting_down")
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
