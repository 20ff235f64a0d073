package tutor

import (
	"context"
	"time"

	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/prompt"
	"github.com/abhisek/instructoria/internal/store"
)

// Welcome streams the opening message of a session. When the session
// already has messages the first assistant message is replayed instead
// and no model call is made.
func (s *Service) Welcome(ctx context.Context, userID, sessionID string, sink Sink) error {
	if !s.locks.tryLock(sessionID) {
		return ErrSessionBusy
	}
	defer s.locks.unlock(sessionID)

	ctx, span := s.tracer.Start(ctx, "tutor.Welcome")
	defer span.End()

	sess, doc, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	ctx = llm.WithSession(ctx, sess.ID)
	log := s.log.With("session_id", sess.ID, "lesson_id", sess.LessonID)
	out := &detachingSink{Sink: sink, log: log}

	n, err := s.store.Messages().Count(ctx, sess.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		first, err := s.store.Messages().FirstAssistant(ctx, sess.ID)
		if err != nil {
			return err
		}
		if first != nil {
			out.content(first.Content)
		}
		log.Info("chat.welcome.replayed")
		out.done()
		return nil
	}

	first := doc.First()
	system := s.composer.Compose(prompt.Input{Doc: doc, Current: first})

	resp, err := s.generate(ctx, PurposeWelcome, llm.Request{
		Model:     s.cfg.WelcomeModel,
		System:    system,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt.Welcome(doc)}},
		MaxTokens: s.cfg.WelcomeMaxTokens,
	}, out)
	if err != nil {
		log.Error("chat.welcome.generation_failed", "error", err)
		out.fail(msgGenerationFailed)
		return nil
	}

	pctx := context.WithoutCancel(ctx)
	activityID := first.Activity.ID
	err = s.store.WithTx(pctx, func(tx *store.Store) error {
		n, err := tx.Messages().Count(pctx, sess.ID)
		if err != nil || n > 0 {
			return err
		}
		reply := &store.Message{
			SessionID:    sess.ID,
			Role:         store.RoleAssistant,
			Content:      resp.Text(),
			ActivityID:   &activityID,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
		if err := tx.Messages().Append(pctx, reply); err != nil {
			return err
		}
		now := time.Now().UTC()
		if StateOf(sess).Phase == PhaseNotStarted {
			return tx.Sessions().Advance(pctx, sess.ID, activityID, now)
		}
		return tx.Sessions().Touch(pctx, sess.ID, now)
	})
	if err != nil {
		log.Error("chat.welcome.persist_failed", "error", err)
		out.fail(msgPersistFailed)
		return nil
	}

	log.Info("chat.welcome.generated", "input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	out.done()
	return nil
}
