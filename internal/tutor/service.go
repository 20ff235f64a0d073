// Package tutor runs the lesson progression cycle: it grades each student
// message, steers the tutoring reply with the verdict, streams that reply
// and advances the session once an activity is complete.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/instructoria/internal/content"
	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/logger"
	"github.com/abhisek/instructoria/internal/prompt"
	"github.com/abhisek/instructoria/internal/store"
	"github.com/abhisek/instructoria/internal/verify"
)

// LLM request log purposes.
const (
	PurposeChat    = "chat"
	PurposeWelcome = "welcome"
)

// Config holds tutoring settings.
type Config struct {
	ChatModel        string
	WelcomeModel     string
	ChatMaxTokens    int
	WelcomeMaxTokens int

	// HistorySize is how many persisted messages the tutoring call sees.
	HistorySize int

	// GenerationTimeout bounds a reply once it is detached from the
	// client's request.
	GenerationTimeout time.Duration

	// DevMode enables destructive tooling for non-operator callers.
	DevMode bool
}

// DefaultConfig returns the tutoring defaults.
func DefaultConfig() Config {
	return Config{
		ChatModel:         "claude-sonnet",
		WelcomeModel:      "claude-haiku",
		ChatMaxTokens:     1024,
		WelcomeMaxTokens:  512,
		HistorySize:       6,
		GenerationTimeout: 2 * time.Minute,
	}
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store    *store.Store
	Content  content.Source
	Provider llm.Provider
	Verifier *verify.Verifier
	Composer *prompt.Composer
	Logger   *logger.Logger
}

// Service is the session progression controller.
type Service struct {
	store    *store.Store
	content  content.Source
	provider llm.Provider
	verifier *verify.Verifier
	composer *prompt.Composer
	cfg      Config
	log      *logger.Logger
	tracer   trace.Tracer
	locks    sessionLocks
}

// NewService wires a Service. Missing verifier, composer or logger get
// defaults.
func NewService(d Deps, cfg Config) *Service {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Verifier == nil {
		d.Verifier = verify.New(d.Provider, verify.DefaultConfig(), d.Logger)
	}
	if d.Composer == nil {
		d.Composer = prompt.New(prompt.DefaultConfig())
	}
	if cfg.HistorySize < 0 {
		cfg.HistorySize = 0
	}
	return &Service{
		store:    d.Store,
		content:  d.Content,
		provider: d.Provider,
		verifier: d.Verifier,
		composer: d.Composer,
		cfg:      cfg,
		log:      d.Logger,
		tracer:   otel.Tracer("github.com/abhisek/instructoria/internal/tutor"),
	}
}

// StartSession returns the user's unfinished session for the lesson, or
// creates a new one that has not started yet.
func (s *Service) StartSession(ctx context.Context, userID, lessonID string) (*store.Session, error) {
	if _, err := s.lesson(ctx, lessonID); err != nil {
		return nil, err
	}

	existing, err := s.store.Sessions().FindActive(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sess := &store.Session{UserID: userID, LessonID: lessonID}
	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info("session.started", "session_id", sess.ID, "user_id", userID, "lesson_id", lessonID)
	return sess, nil
}

// Messages returns the session's conversation, oldest first.
func (s *Service) Messages(ctx context.Context, userID, sessionID string) ([]store.Message, error) {
	if _, err := s.session(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.store.Messages().List(ctx, sessionID)
}

// session loads a session owned by userID. An empty userID is operator
// access and skips the ownership check.
func (s *Service) session(ctx context.Context, userID, sessionID string) (*store.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || (userID != "" && sess.UserID != userID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (s *Service) lesson(ctx context.Context, lessonID string) (*lesson.Content, error) {
	doc, err := s.content.Get(ctx, lessonID)
	if errors.Is(err, lesson.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, lessonID)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) load(ctx context.Context, userID, sessionID string) (*store.Session, *lesson.Content, error) {
	sess, err := s.session(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.lesson(ctx, sess.LessonID)
	if err != nil {
		return nil, nil, err
	}
	return sess, doc, nil
}

// generationContext detaches generation from the client so a disconnect
// does not abort a reply that will still be persisted.
func (s *Service) generationContext(ctx context.Context, purpose string) (context.Context, context.CancelFunc) {
	gctx := llm.WithPurpose(context.WithoutCancel(ctx), purpose)
	if s.cfg.GenerationTimeout > 0 {
		return context.WithTimeout(gctx, s.cfg.GenerationTimeout)
	}
	return context.WithCancel(gctx)
}

func historyMessages(msgs []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
