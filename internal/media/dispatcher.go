package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"Go_Drop/internal/log"
	"Go_Drop/internal/metrics"
	"Go_Drop/model"
)

// ErrQueueFull is returned when the local pool cannot take another job.
var ErrQueueFull = errors.New("thumbnail queue full")

// LocalDispatcher renders thumbnails in a bounded pool inside the server
// process. Failures are logged and dropped.
type LocalDispatcher struct {
	thumbnailer *Thumbnailer
	jobs        chan string
	timeout     time.Duration
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewLocalDispatcher starts workers goroutines reading from a queue of
// queueSize pending jobs.
func NewLocalDispatcher(t *Thumbnailer, workers, queueSize int) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &LocalDispatcher{
		thumbnailer: t,
		jobs:        make(chan string, queueSize),
		timeout:     time.Minute,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *LocalDispatcher) Dispatch(_ context.Context, file model.FileRecord) error {
	select {
	case d.jobs <- file.Filename:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *LocalDispatcher) run() {
	defer d.wg.Done()
	for filename := range d.jobs {
		Render(d.thumbnailer, filename, d.timeout)
	}
}

// Close stops accepting jobs and waits for queued ones.
func (d *LocalDispatcher) Close() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}

// Render generates thumbnails for filename and records the outcome.
// It returns the error only for logging; nothing retries it.
func Render(t *Thumbnailer, filename string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.Generate(ctx, filename); err != nil {
		metrics.ThumbnailsGenerated.WithLabelValues("failed").Inc()
		log.Warnf("thumbnail for %s: %v", filename, err)
		return err
	}
	metrics.ThumbnailsGenerated.WithLabelValues("ok").Inc()
	log.Debugf("thumbnail for %s generated", filename)
	return nil
}
