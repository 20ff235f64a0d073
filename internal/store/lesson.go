package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type lessonRepo struct {
	db *gorm.DB
}

func (r *lessonRepo) Get(ctx context.Context, id string) (*Lesson, error) {
	var l Lesson
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return &l, nil
}

func (r *lessonRepo) Save(ctx context.Context, l *Lesson) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "description", "duration_minutes", "published", "content", "updated_at"}),
		}).
		Create(l).Error
	if err != nil {
		return fmt.Errorf("save lesson: %w", err)
	}
	return nil
}

func (r *lessonRepo) List(ctx context.Context) ([]Lesson, error) {
	var out []Lesson
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return out, nil
}
