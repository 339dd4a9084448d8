package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Go_Drop/internal/log"
	"Go_Drop/internal/metrics"
	"Go_Drop/model"
)

// ChunkRecorder writes chunk metadata rows off the request path. Every
// write reports its outcome on the returned channel; failures are retried
// with exponential backoff and logged once retries are exhausted.
type ChunkRecorder struct {
	db         *gorm.DB
	maxRetries uint64
	interval   time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]int
	wg      sync.WaitGroup
}

func NewChunkRecorder(db *gorm.DB) *ChunkRecorder {
	r := &ChunkRecorder{
		db:         db,
		maxRetries: 3,
		interval:   50 * time.Millisecond,
		pending:    make(map[string]int),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Record schedules an upsert of rec. The channel receives exactly one
// value, nil on success.
func (r *ChunkRecorder) Record(rec model.ChunkRecord) <-chan error {
	result := make(chan error, 1)

	r.mu.Lock()
	r.pending[rec.UploadID]++
	r.mu.Unlock()
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.done(rec.UploadID)

		err := r.write(rec)
		if err != nil {
			metrics.ChunkRecordFailures.Inc()
			log.Errorw("chunk record write failed",
				"uploadId", rec.UploadID,
				"chunkIndex", rec.ChunkIndex,
				"error", err,
			)
		}
		result <- err
	}()
	return result
}

func (r *ChunkRecorder) write(rec model.ChunkRecord) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		row := rec
		err := r.db.
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "upload_id"},
					{Name: "chunk_index"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"chunk_size",
					"chunk_path",
					"updated_at",
				}),
			}).
			Create(&row).Error
		if err != nil {
			log.Warnf("chunk record %s/%d attempt %d: %v", rec.UploadID, rec.ChunkIndex, attempt, err)
			return fmt.Errorf("upsert chunk record: %w", err)
		}
		return nil
	}, backoff.WithMaxRetries(b, r.maxRetries))
}

func (r *ChunkRecorder) done(uploadID string) {
	r.mu.Lock()
	r.pending[uploadID]--
	if r.pending[uploadID] <= 0 {
		delete(r.pending, uploadID)
	}
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Wait blocks until no write for uploadID is in flight.
func (r *ChunkRecorder) Wait(uploadID string) {
	r.mu.Lock()
	for r.pending[uploadID] > 0 {
		r.cond.Wait()
	}
	r.mu.Unlock()
}

// Close waits for every scheduled write.
func (r *ChunkRecorder) Close() {
	r.wg.Wait()
}
