package content

import (
	"context"
	"fmt"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/store"
)

// DB serves published lessons stored in the lessons table.
type DB struct {
	repo store.LessonRepo
}

func NewDB(repo store.LessonRepo) *DB {
	return &DB{repo: repo}
}

func (d *DB) Get(ctx context.Context, id string) (*lesson.Content, error) {
	row, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.Published {
		return nil, fmt.Errorf("lesson %q: %w", id, lesson.ErrNotFound)
	}
	doc, err := lesson.Parse(row.Content)
	if err != nil {
		return nil, fmt.Errorf("stored lesson %q: %w", id, err)
	}
	return doc, nil
}

// Import validates data and stores it under id as a published lesson.
func (d *DB) Import(ctx context.Context, id string, data []byte) (*lesson.Content, error) {
	if !validID(id) {
		return nil, fmt.Errorf("invalid lesson id %q", id)
	}
	doc, err := lesson.Parse(data)
	if err != nil {
		return nil, err
	}
	row := &store.Lesson{
		ID:              id,
		Title:           doc.Metadata.Title,
		Description:     doc.Metadata.Description,
		DurationMinutes: doc.Metadata.DurationMinutes,
		Published:       true,
		Content:         data,
	}
	if err := d.repo.Save(ctx, row); err != nil {
		return nil, err
	}
	return doc, nil
}
