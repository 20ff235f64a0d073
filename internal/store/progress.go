package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type progressRepo struct {
	db *gorm.DB
}

func (r *progressRepo) Get(ctx context.Context, sessionID, activityID string) (*ActivityProgress, error) {
	var p ActivityProgress
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND activity_id = ?", sessionID, activityID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get activity progress: %w", err)
	}
	return &p, nil
}

func (r *progressRepo) Save(ctx context.Context, p *ActivityProgress) error {
	db := r.db.WithContext(ctx)
	if p.ID == "" {
		if err := db.Create(p).Error; err != nil {
			return fmt.Errorf("create activity progress: %w", err)
		}
		return nil
	}
	if err := db.Save(p).Error; err != nil {
		return fmt.Errorf("save activity progress: %w", err)
	}
	return nil
}

func (r *progressRepo) ListBySession(ctx context.Context, sessionID string) ([]ActivityProgress, error) {
	var out []ActivityProgress
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list activity progress: %w", err)
	}
	return out, nil
}

func (r *progressRepo) CompletedActivityIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&ActivityProgress{}).
		Where("session_id = ? AND status = ?", sessionID, StatusCompleted).
		Order("completed_at ASC").
		Pluck("activity_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list completed activities: %w", err)
	}
	return ids, nil
}

func (r *progressRepo) LastCompleted(ctx context.Context, sessionID string) (*ActivityProgress, error) {
	var p ActivityProgress
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, StatusCompleted).
		Order("completed_at DESC").
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completed activity: %w", err)
	}
	return &p, nil
}
