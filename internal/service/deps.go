package service

import (
	"context"

	"Go_Drop/model"
)

// EventPublisher delivers an event to every connected session of a user.
type EventPublisher interface {
	Publish(userID uint64, event string, data interface{})
}

// ThumbnailDispatcher schedules thumbnail rendering for a stored image.
type ThumbnailDispatcher interface {
	Dispatch(ctx context.Context, file model.FileRecord) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(uint64, string, interface{}) {}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, model.FileRecord) error { return nil }
