package tutor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/prompt"
	"github.com/abhisek/instructoria/internal/store"
	"github.com/abhisek/instructoria/internal/verify"
)

// HandleMessage runs one progression cycle for a student message.
//
// Input errors (unknown session, unknown lesson, busy session, empty
// message) are returned before any event reaches the sink. Once events
// flow, failures are reported through sink.Error and logged, and the
// return value is nil.
func (s *Service) HandleMessage(ctx context.Context, userID, sessionID, text string, sink Sink) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if !s.locks.tryLock(sessionID) {
		return ErrSessionBusy
	}
	defer s.locks.unlock(sessionID)

	ctx, span := s.tracer.Start(ctx, "tutor.HandleMessage", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	sess, doc, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	ctx = llm.WithSession(ctx, sess.ID)
	log := s.log.With("session_id", sess.ID, "lesson_id", sess.LessonID)
	out := &detachingSink{Sink: sink, log: log}

	state := StateOf(sess)
	if state.Phase == PhaseComplete {
		s.wrapUp(ctx, sess, doc, text, out)
		return nil
	}

	cur := doc.Locate(state.ActivityID)
	if cur == nil {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, state.ActivityID)
	}
	span.SetAttributes(attribute.String("activity.id", cur.Activity.ID))

	progress, err := s.store.Progress().Get(ctx, sess.ID, cur.Activity.ID)
	if err != nil {
		return err
	}
	if progress == nil {
		progress = &store.ActivityProgress{
			SessionID:  sess.ID,
			ActivityID: cur.Activity.ID,
			MomentID:   cur.Moment.ID,
			Status:     store.StatusInProgress,
			StartedAt:  time.Now().UTC(),
		}
	}
	completedIDs, err := s.store.Progress().CompletedActivityIDs(ctx, sess.ID)
	if err != nil {
		return err
	}
	history, err := s.store.Messages().Recent(ctx, sess.ID, s.cfg.HistorySize)
	if err != nil {
		return err
	}

	verdict := s.verify(ctx, text, cur.Activity)
	log.Info("chat.verified",
		"activity_id", cur.Activity.ID,
		"completed", verdict.Completed,
		"matched", len(verdict.CriteriaMatched),
		"missing", len(verdict.CriteriaMissing),
		"confidence", verdict.Confidence,
		"fallback", verdict.Fallback,
	)

	var next *lesson.Located
	if verdict.Completed {
		next = doc.Next(cur.Activity.ID)
		out.completed(completionEvent(doc, cur, next, len(completedIDs)+1))
	}

	system := s.composer.Compose(prompt.Input{
		Doc:                  doc,
		Current:              cur,
		Verdict:              &verdict,
		Attempts:             progress.Attempts,
		TangentCount:         progress.TangentCount,
		CompletedActivityIDs: completedIDs,
	})

	resp, err := s.generate(ctx, PurposeChat, llm.Request{
		Model:     s.cfg.ChatModel,
		System:    system,
		Messages:  append(historyMessages(history), llm.Message{Role: llm.RoleUser, Content: text}),
		MaxTokens: s.cfg.ChatMaxTokens,
	}, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		log.Error("chat.stream.generation_failed", "activity_id", cur.Activity.ID, "error", err)
		out.fail(msgGenerationFailed)
		return nil
	}

	now := time.Now().UTC()
	err = s.persistCycle(ctx, sess, cur, next, progress, verdict, text, resp, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		log.Error("chat.persist_failed", "activity_id", cur.Activity.ID, "error", err)
		out.fail(msgPersistFailed)
		return nil
	}

	if verdict.Completed {
		if next == nil {
			log.Info("session.lesson_completed", "activity_id", cur.Activity.ID)
		} else {
			log.Info("session.advanced", "from", cur.Activity.ID, "to", next.Activity.ID)
		}
	}
	out.done()
	return nil
}

// verify grades on a context detached from the client. A hang-up during
// grading must not turn an LLM grade into a keyword grade that the
// detached cycle then persists. The verifier's own timeout bounds the call.
func (s *Service) verify(ctx context.Context, text string, a *lesson.Activity) verify.Verdict {
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "tutor.verify", trace.WithAttributes(attribute.String("activity.id", a.ID)))
	defer span.End()

	v := s.verifier.Verify(ctx, text, a)
	span.SetAttributes(
		attribute.Bool("verdict.completed", v.Completed),
		attribute.Bool("verdict.fallback", v.Fallback),
	)
	return v
}

// generate streams a reply to out and returns the full response.
func (s *Service) generate(ctx context.Context, purpose string, req llm.Request, out *detachingSink) (*llm.Response, error) {
	gctx, cancel := s.generationContext(ctx, purpose)
	defer cancel()
	gctx, span := s.tracer.Start(gctx, "tutor.generate", trace.WithAttributes(attribute.String("llm.purpose", purpose)))
	defer span.End()

	resp, err := s.provider.Stream(gctx, req, func(delta string) error {
		out.content(delta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// persistCycle writes the message pair, the progress row and the session
// update as one unit.
func (s *Service) persistCycle(
	ctx context.Context,
	sess *store.Session,
	cur, next *lesson.Located,
	progress *store.ActivityProgress,
	verdict verify.Verdict,
	text string,
	resp *llm.Response,
	now time.Time,
) error {
	ctx = context.WithoutCancel(ctx)
	activityID := cur.Activity.ID

	return s.store.WithTx(ctx, func(tx *store.Store) error {
		user := &store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: text, ActivityID: &activityID}
		reply := &store.Message{
			SessionID:    sess.ID,
			Role:         store.RoleAssistant,
			Content:      resp.Text(),
			ActivityID:   &activityID,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
		if err := tx.Messages().Append(ctx, user, reply); err != nil {
			return err
		}

		if progress.Status != store.StatusCompleted {
			progress.Attempts++
			progress.AIFeedback = verdict.Feedback
			switch {
			case verdict.Completed:
				progress.Status = store.StatusCompleted
				progress.PassedCriteria = true
				progress.CompletedAt = &now
			case len(verdict.CriteriaMatched) == 0:
				progress.TangentCount++
			}
			if err := tx.Progress().Save(ctx, progress); err != nil {
				return err
			}
		}

		switch {
		case verdict.Completed && next != nil:
			return tx.Sessions().Advance(ctx, sess.ID, next.Activity.ID, now)
		case verdict.Completed:
			return tx.Sessions().Complete(ctx, sess.ID, now)
		case sess.CurrentActivityID == nil:
			return tx.Sessions().Advance(ctx, sess.ID, activityID, now)
		default:
			return tx.Sessions().Touch(ctx, sess.ID, now)
		}
	})
}

// wrapUp answers follow-up questions after the lesson is complete. No
// grading runs and no progress changes.
func (s *Service) wrapUp(ctx context.Context, sess *store.Session, doc *lesson.Content, text string, out *detachingSink) {
	log := s.log.With("session_id", sess.ID)

	history, err := s.store.Messages().Recent(ctx, sess.ID, s.cfg.HistorySize)
	if err != nil {
		log.Error("chat.history_failed", "error", err)
		out.fail(msgGenerationFailed)
		return
	}

	resp, err := s.generate(ctx, PurposeChat, llm.Request{
		Model:     s.cfg.ChatModel,
		System:    prompt.WrapUp(doc),
		Messages:  append(historyMessages(history), llm.Message{Role: llm.RoleUser, Content: text}),
		MaxTokens: s.cfg.ChatMaxTokens,
	}, out)
	if err != nil {
		log.Error("chat.stream.generation_failed", "phase", PhaseComplete.String(), "error", err)
		out.fail(msgGenerationFailed)
		return
	}

	pctx := context.WithoutCancel(ctx)
	err = s.store.WithTx(pctx, func(tx *store.Store) error {
		user := &store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: text}
		reply := &store.Message{
			SessionID:    sess.ID,
			Role:         store.RoleAssistant,
			Content:      resp.Text(),
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
		if err := tx.Messages().Append(pctx, user, reply); err != nil {
			return err
		}
		return tx.Sessions().Touch(pctx, sess.ID, time.Now().UTC())
	})
	if err != nil {
		log.Error("chat.persist_failed", "phase", PhaseComplete.String(), "error", err)
		out.fail(msgPersistFailed)
		return
	}
	out.done()
}

func completionEvent(doc *lesson.Content, cur, next *lesson.Located, completedCount int) CompletionEvent {
	total := doc.TotalActivities()
	ev := CompletionEvent{
		ActivityID:      cur.Activity.ID,
		TotalActivities: total,
		CompletedCount:  min(completedCount, total),
		Percentage:      Percentage(completedCount, total),
		CurrentPosition: total,
		IsLastActivity:  next == nil,
	}
	if next != nil {
		id := next.Activity.ID
		ev.NextActivityID = &id
		ev.NextActivityTitle = next.Activity.Teaching.MainTopic
		ev.CurrentPosition = next.Position
	}
	return ev
}
