package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
)

type messageRepo struct {
	db *gorm.DB
}

// Append assigns sequence numbers after the session's current maximum.
// Callers that need the pair to land together run it inside WithTx.
func (r *messageRepo) Append(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	next := map[string]int64{}
	now := time.Now().UTC()

	for i, m := range msgs {
		seq, ok := next[m.SessionID]
		if !ok {
			var maxSeq int64
			if err := db.Model(&Message{}).
				Where("session_id = ?", m.SessionID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&maxSeq).Error; err != nil {
				return fmt.Errorf("max message seq: %w", err)
			}
			seq = maxSeq
		}
		seq++
		next[m.SessionID] = seq
		m.Seq = seq
		if m.CreatedAt.IsZero() {
			// Keep creation order strictly increasing within one batch.
			m.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
	}

	if err := db.Create(msgs).Error; err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

func (r *messageRepo) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (r *messageRepo) List(ctx context.Context, sessionID string) ([]Message, error) {
	var out []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

func (r *messageRepo) FirstAssistant(ctx context.Context, sessionID string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND role = ?", sessionID, RoleAssistant).
		Order("seq ASC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first assistant message: %w", err)
	}
	return &m, nil
}

func (r *messageRepo) Count(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Message{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
