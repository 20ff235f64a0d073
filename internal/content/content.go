// Package content resolves lesson ids to validated lesson documents.
package content

import (
	"context"
	"errors"

	"github.com/abhisek/instructoria/internal/lesson"
)

// Source looks up a lesson by id. Implementations return an error wrapping
// lesson.ErrNotFound when the id is unknown.
type Source interface {
	Get(ctx context.Context, id string) (*lesson.Content, error)
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) Get(ctx context.Context, id string) (*lesson.Content, error) {
	for _, s := range c {
		doc, err := s.Get(ctx, id)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, lesson.ErrNotFound) {
			return nil, err
		}
	}
	return nil, lesson.ErrNotFound
}
