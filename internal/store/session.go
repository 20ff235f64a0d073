package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type sessionRepo struct {
	db *gorm.DB
}

func (r *sessionRepo) Create(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = s.StartedAt
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) FindActive(ctx context.Context, userID, lessonID string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND lesson_id = ? AND completed_at IS NULL", userID, lessonID).
		Order("started_at DESC").
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{"last_activity_at": at})
}

func (r *sessionRepo) Advance(ctx context.Context, id, activityID string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"current_activity_id": activityID,
		"last_activity_at":    at,
	})
}

func (r *sessionRepo) Complete(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"completed_at":     at,
		"passed":           true,
		"last_activity_at": at,
	})
}

func (r *sessionRepo) Reset(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&ActivityProgress{}).Error; err != nil {
			return fmt.Errorf("delete progress: %w", err)
		}
		now := time.Now().UTC()
		res := tx.Model(&Session{}).Where("id = ?", id).Updates(map[string]any{
			"current_activity_id": nil,
			"completed_at":        nil,
			"passed":              nil,
			"started_at":          now,
			"last_activity_at":    now,
		})
		if res.Error != nil {
			return fmt.Errorf("reset session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("reset session %s: %w", id, gorm.ErrRecordNotFound)
		}
		return nil
	})
}

func (r *sessionRepo) update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update session %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
