package worker

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"

	"Go_Drop/config"
	"Go_Drop/internal/log"
	"Go_Drop/internal/media"
	"Go_Drop/internal/mq"
	"Go_Drop/internal/task"
)

const jobTimeout = 2 * time.Minute

// RunThumbnailWorker consumes thumbnail jobs from RabbitMQ until ctx is
// cancelled.
func RunThumbnailWorker(ctx context.Context, thumbnailer *media.Thumbnailer) error {
	client, err := mq.Dial()
	if err != nil {
		return err
	}
	defer client.Close()

	deliveries, err := client.ConsumeJobs(config.AppConfig.RabbitMQPrefetch)
	if err != nil {
		return err
	}

	concurrency := config.AppConfig.ThumbWorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	limiter := newLimiter(config.AppConfig.ThumbRate, config.AppConfig.ThumbBurst)

	for {
		select {
		case <-ctx.Done():
			// wait for jobs in flight
			for i := 0; i < concurrency; i++ {
				sem <- struct{}{}
			}
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("thumbnail worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handleThumbnailMessage(ctx, client, limiter, thumbnailer, d)
			}(delivery)
		}
	}
}

func newLimiter(r float64, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if r <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(r), burst)
}

func handleThumbnailMessage(ctx context.Context, client *mq.Client, limiter *rate.Limiter, thumbnailer *media.Thumbnailer, delivery amqp.Delivery) {
	job, err := mq.DecodeThumbnailJob(delivery.Body)
	if err != nil {
		log.Warnf("thumbnail worker: %v", err)
		_ = delivery.Ack(false)
		return
	}

	if err := limiter.Wait(ctx); err != nil {
		// shutting down, let another consumer take it
		_ = delivery.Nack(false, true)
		return
	}

	if err := task.ProcessThumbnail(thumbnailer, job, jobTimeout); err != nil {
		parkFailure(client, job, err)
	}
	_ = delivery.Ack(false)
}

func parkFailure(client *mq.Client, job mq.ThumbnailJob, procErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.ParkFailure(ctx, mq.ThumbnailFailure{
		FileID:   job.FileID,
		Filename: job.Filename,
		Error:    procErr.Error(),
		FailedAt: time.Now(),
	})
	if err != nil {
		log.Warnf("thumbnail worker: park failure of %s: %v", job.Filename, err)
	}
}
