package task

import (
	"context"
	"fmt"
	"time"

	"Go_Drop/internal/media"
	"Go_Drop/internal/mq"
	"Go_Drop/model"
)

// MQDispatcher publishes thumbnail jobs to RabbitMQ for cmd/worker.
type MQDispatcher struct{}

// Dispatch enqueues a thumbnail job for file.
func (MQDispatcher) Dispatch(ctx context.Context, file model.FileRecord) error {
	publisher, err := mq.Publisher()
	if err != nil {
		return fmt.Errorf("rabbitmq publisher: %w", err)
	}
	return publisher.PublishJob(ctx, NewThumbnailJob(file))
}

// NewThumbnailJob describes file as a queued job.
func NewThumbnailJob(file model.FileRecord) mq.ThumbnailJob {
	return mq.ThumbnailJob{
		FileID:   file.ID,
		Filename: file.Filename,
		MimeType: file.MimeType,
		QueuedAt: time.Now(),
	}
}

// ProcessThumbnail renders the thumbnails described by job.
func ProcessThumbnail(t *media.Thumbnailer, job mq.ThumbnailJob, timeout time.Duration) error {
	return media.Render(t, job.Filename, timeout)
}
