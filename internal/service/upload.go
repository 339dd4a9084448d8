package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"os"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"Go_Drop/config"
	"Go_Drop/internal/log"
	"Go_Drop/internal/metrics"
	"Go_Drop/internal/realtime"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/storage/chunkstore"
	"Go_Drop/model"
	"Go_Drop/utils"
)

const (
	maxTotalChunks = 100000
	sweepLockKey   = "upload:sweep"
)

func mergeLockKey(uploadID string) string {
	return "upload:merge:" + uploadID
}

// UploadDeps are the collaborators of UploadService. Thumbs and Events
// may be nil.
type UploadDeps struct {
	DB      *gorm.DB
	Chunks  *chunkstore.Store
	Store   storage.Store
	Locker  repo.Locker
	Cache   utils.Cache
	Thumbs  ThumbnailDispatcher
	Events  EventPublisher
	Storage config.StorageConfig
}

// UploadService implements chunked and direct uploads.
type UploadService struct {
	db       *gorm.DB
	chunks   *chunkstore.Store
	store    storage.Store
	locker   repo.Locker
	cache    utils.Cache
	thumbs   ThumbnailDispatcher
	events   EventPublisher
	cfg      config.StorageConfig
	recorder *ChunkRecorder

	// randFloat decides whether an init call triggers a sweep.
	randFloat func() float64

	bg sync.WaitGroup
}

func NewUploadService(deps UploadDeps) *UploadService {
	s := &UploadService{
		db:        deps.DB,
		chunks:    deps.Chunks,
		store:     deps.Store,
		locker:    deps.Locker,
		cache:     deps.Cache,
		thumbs:    deps.Thumbs,
		events:    deps.Events,
		cfg:       deps.Storage,
		recorder:  NewChunkRecorder(deps.DB),
		randFloat: rand.Float64,
	}
	if s.locker == nil {
		s.locker = repo.NewLocalLocker()
	}
	if s.cache == nil {
		s.cache = utils.NewMemoryCache()
	}
	if s.thumbs == nil {
		s.thumbs = nopDispatcher{}
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.cfg.MergeLockTTL <= 0 {
		s.cfg.MergeLockTTL = 5 * time.Minute
	}
	if s.cfg.ChunkMaxAge <= 0 {
		s.cfg.ChunkMaxAge = 24 * time.Hour
	}
	return s
}

type InitUploadInput struct {
	Filename    string
	TotalChunks int
	FileSize    int64
	MimeType    string
	Source      string
}

// InitUpload opens an upload session owned by userID and returns its id.
func (s *UploadService) InitUpload(ctx context.Context, userID uint64, in InitUploadInput) (string, error) {
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return "", fmt.Errorf("%w: filename required", ErrInvalidInput)
	}
	if in.TotalChunks < 1 || in.TotalChunks > maxTotalChunks {
		return "", fmt.Errorf("%w: totalChunks must be between 1 and %d", ErrInvalidInput, maxTotalChunks)
	}
	if in.FileSize < 0 {
		return "", fmt.Errorf("%w: fileSize must not be negative", ErrInvalidInput)
	}
	source, err := normalizeSource(in.Source)
	if err != nil {
		return "", err
	}

	s.maybeSweep()

	session := model.UploadSession{
		UploadID:    utils.NewUploadID(),
		UserID:      userID,
		FileName:    utils.SanitizeOriginalName(filename),
		FileSize:    in.FileSize,
		MimeType:    in.MimeType,
		Source:      source,
		TotalChunks: in.TotalChunks,
		Status:      model.UploadStatusUploading,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", fmt.Errorf("create upload session: %w", err)
	}
	metrics.UploadSessionsStarted.Inc()
	log.Debugf("upload session %s opened by user %d: %s, %d chunks", session.UploadID, userID, session.FileName, session.TotalChunks)
	return session.UploadID, nil
}

// ChunkReceipt acknowledges a stored chunk. Recorded yields the outcome of
// the asynchronous metadata write.
type ChunkReceipt struct {
	ChunkIndex int
	Size       int64
	Recorded   <-chan error
}

// SaveChunk moves one uploaded part into the chunk directory. Uploading
// the same index again replaces the earlier bytes.
func (s *UploadService) SaveChunk(ctx context.Context, userID uint64, uploadID string, index int, part *multipart.FileHeader) (ChunkReceipt, error) {
	if part == nil {
		return ChunkReceipt{}, fmt.Errorf("%w: chunk required", ErrInvalidInput)
	}
	session, err := s.loadSession(ctx, userID, uploadID)
	if err != nil {
		return ChunkReceipt{}, err
	}
	if index < 0 || index >= session.TotalChunks {
		return ChunkReceipt{}, fmt.Errorf("%w: %d not in [0, %d)", ErrChunkIndexRange, index, session.TotalChunks)
	}
	if session.Status == model.UploadStatusMerging {
		return ChunkReceipt{}, ErrUploadBusy
	}

	size, err := s.chunks.Put(uploadID, index, part)
	if err != nil {
		return ChunkReceipt{}, fmt.Errorf("store chunk %d: %w", index, err)
	}
	metrics.ChunksStored.Inc()
	return s.acceptChunk(ctx, userID, uploadID, index, size)
}

// acceptChunk schedules the metadata row of a stored chunk and checks the
// session again: a complete call may have claimed it while the chunk was
// being written. The row is scheduled first so that a running complete
// waits for it and removes it together with the chunk file.
func (s *UploadService) acceptChunk(ctx context.Context, userID uint64, uploadID string, index int, size int64) (ChunkReceipt, error) {
	recorded := s.recorder.Record(model.ChunkRecord{
		UploadID:   uploadID,
		ChunkIndex: index,
		ChunkSize:  size,
		ChunkPath:  s.chunks.Path(uploadID, index),
	})

	session, err := s.loadSession(ctx, userID, uploadID)
	if errors.Is(err, ErrSessionNotFound) {
		// finalized or discarded meanwhile, nothing will consume this chunk
		s.dropChunk(uploadID, index)
		return ChunkReceipt{}, err
	}
	if err != nil {
		return ChunkReceipt{}, err
	}
	if session.Status != model.UploadStatusUploading {
		return ChunkReceipt{}, ErrUploadBusy
	}
	return ChunkReceipt{ChunkIndex: index, Size: size, Recorded: recorded}, nil
}

type CompleteUploadInput struct {
	UploadID    string
	Filename    string
	TotalChunks int
	MimeType    string
	Source      string
}

// CompleteUpload reassembles chunks 0..N-1 into one stored file and
// registers it. Each chunk file is deleted as soon as it has been read.
// If a chunk is missing before reassembly starts nothing is consumed and
// the session stays open; a failure during reassembly discards the upload.
func (s *UploadService) CompleteUpload(ctx context.Context, userID uint64, in CompleteUploadInput) (*model.FileRecord, error) {
	session, err := s.loadSession(ctx, userID, in.UploadID)
	if err != nil {
		return nil, err
	}
	if in.TotalChunks != 0 && in.TotalChunks != session.TotalChunks {
		return nil, fmt.Errorf("%w: totalChunks %d does not match session (%d)", ErrInvalidInput, in.TotalChunks, session.TotalChunks)
	}
	source := session.Source
	if in.Source != "" {
		if source, err = normalizeSource(in.Source); err != nil {
			return nil, err
		}
	}

	unlock, err := s.locker.Obtain(ctx, mergeLockKey(session.UploadID), s.cfg.MergeLockTTL)
	if err != nil {
		if errors.Is(err, repo.ErrLockBusy) {
			return nil, ErrUploadBusy
		}
		return nil, fmt.Errorf("obtain merge lock: %w", err)
	}
	defer unlock()

	res := s.db.WithContext(ctx).Model(&model.UploadSession{}).
		Where("upload_id = ? AND status = ?", session.UploadID, model.UploadStatusUploading).
		Update("status", model.UploadStatusMerging)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUploadBusy
	}

	var total int64
	for i := 0; i < session.TotalChunks; i++ {
		size, err := s.chunks.Stat(session.UploadID, i)
		if err != nil {
			s.reopenSession(session.UploadID)
			if errors.Is(err, chunkstore.ErrChunkNotFound) {
				metrics.UploadsCompleted.WithLabelValues("chunked", "incomplete").Inc()
				return nil, fmt.Errorf("%w: index %d of %d", ErrChunkMissing, i, session.TotalChunks)
			}
			return nil, fmt.Errorf("stat chunk %d: %w", i, err)
		}
		total += size
	}

	// late metadata writes must land before the rows are deleted
	s.recorder.Wait(session.UploadID)

	// chunks are consumed from here on, a dropped client must not abort
	ctx = context.WithoutCancel(ctx)

	originalName := session.FileName
	if in.Filename != "" {
		originalName = utils.SanitizeOriginalName(in.Filename)
	}
	mimeType := firstNonEmpty(in.MimeType, session.MimeType, GetContentType(originalName))
	name := utils.NewStorageName(originalName)
	key := storage.FileKey(name)

	reader := newChunkReader(ctx, s.chunks, session.UploadID, session.TotalChunks)
	info, err := s.store.PutObject(ctx, key, reader, total, storage.PutOptions{ContentType: mimeType})
	reader.Close()
	if err != nil {
		s.removeObject(key)
		s.discardUpload(session.UploadID)
		metrics.UploadsCompleted.WithLabelValues("chunked", "failed").Inc()
		return nil, fmt.Errorf("reassemble %s: %w", session.UploadID, err)
	}

	file := &model.FileRecord{
		Filename:     name,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         info.Size,
		Path:         key,
		UserID:       userID,
		Source:       source,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return err
		}
		if err := tx.Where("upload_id = ?", session.UploadID).Delete(&model.ChunkRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("upload_id = ?", session.UploadID).Delete(&model.UploadSession{}).Error
	})
	if err != nil {
		s.removeObject(key)
		s.discardUpload(session.UploadID)
		metrics.UploadsCompleted.WithLabelValues("chunked", "failed").Inc()
		return nil, fmt.Errorf("register file: %w", err)
	}

	// chunks re-sent while merging outlive the session otherwise
	s.discardUpload(session.UploadID)

	metrics.UploadsCompleted.WithLabelValues("chunked", "ok").Inc()
	metrics.BytesStored.Add(float64(file.Size))
	log.Infof("upload %s finalized as %s (%d bytes)", session.UploadID, file.Filename, file.Size)
	s.afterUpload(ctx, *file)
	return file, nil
}

// DirectUpload stores a small file in one request, without a session.
func (s *UploadService) DirectUpload(ctx context.Context, userID uint64, part *multipart.FileHeader, source string) (*model.FileRecord, error) {
	if part == nil {
		return nil, fmt.Errorf("%w: file required", ErrInvalidInput)
	}
	source, err := normalizeSource(source)
	if err != nil {
		return nil, err
	}
	originalName := utils.SanitizeOriginalName(part.Filename)
	mimeType := part.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = GetContentType(originalName)
	}

	src, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := utils.NewStorageName(originalName)
	key := storage.FileKey(name)
	info, err := s.store.PutObject(ctx, key, src, part.Size, storage.PutOptions{ContentType: mimeType})
	if err != nil {
		s.removeObject(key)
		metrics.UploadsCompleted.WithLabelValues("direct", "failed").Inc()
		return nil, fmt.Errorf("store file: %w", err)
	}

	file := &model.FileRecord{
		Filename:     name,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         info.Size,
		Path:         key,
		UserID:       userID,
		Source:       source,
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		s.removeObject(key)
		metrics.UploadsCompleted.WithLabelValues("direct", "failed").Inc()
		return nil, fmt.Errorf("register file: %w", err)
	}

	metrics.UploadsCompleted.WithLabelValues("direct", "ok").Inc()
	metrics.BytesStored.Add(float64(file.Size))
	s.afterUpload(ctx, *file)
	return file, nil
}

// SweepReport counts what one sweep removed.
type SweepReport struct {
	ChunkFiles int   `json:"chunkFiles"`
	Sessions   int64 `json:"sessions"`
	Records    int64 `json:"records"`
}

// SweepOrphans deletes chunk files older than the configured max age
// together with their sessions and metadata rows. Only one sweep runs at
// a time; a busy lock yields an empty report.
func (s *UploadService) SweepOrphans(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	unlock, err := s.locker.Obtain(ctx, sweepLockKey, s.cfg.MergeLockTTL)
	if err != nil {
		if errors.Is(err, repo.ErrLockBusy) {
			return report, nil
		}
		return report, err
	}
	defer unlock()

	cutoff := time.Now().Add(-s.cfg.ChunkMaxAge)
	swept, err := s.chunks.Sweep(cutoff)
	if err != nil {
		return report, fmt.Errorf("sweep chunk dir: %w", err)
	}
	report.ChunkFiles = swept.Removed

	var stale []string
	if err := s.db.WithContext(ctx).Model(&model.UploadSession{}).
		Where("created_at < ?", cutoff).
		Pluck("upload_id", &stale).Error; err != nil {
		return report, err
	}
	for _, id := range stale {
		n, err := s.chunks.RemoveUpload(id)
		if err != nil {
			log.Warnf("sweep: remove chunks of %s: %v", id, err)
		}
		report.ChunkFiles += n
	}

	ids := append(stale, swept.UploadIDs...)
	recordQuery := s.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if len(ids) > 0 {
		recordQuery = recordQuery.Or("upload_id IN ?", ids)
	}
	res := recordQuery.Delete(&model.ChunkRecord{})
	if res.Error != nil {
		return report, res.Error
	}
	report.Records = res.RowsAffected

	res = s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.UploadSession{})
	if res.Error != nil {
		return report, res.Error
	}
	report.Sessions = res.RowsAffected

	metrics.SweptChunks.Add(float64(report.ChunkFiles))
	if report.ChunkFiles > 0 || report.Sessions > 0 {
		log.Infow("swept abandoned uploads",
			"chunkFiles", report.ChunkFiles,
			"sessions", report.Sessions,
			"records", report.Records,
		)
	}
	return report, nil
}

// Wait blocks until background work started by the service has finished:
// chunk metadata writes, sweeps and post-upload notifications.
func (s *UploadService) Wait() {
	s.recorder.Close()
	s.bg.Wait()
}

func (s *UploadService) maybeSweep() {
	if s.cfg.SweepProbability <= 0 || s.randFloat() >= s.cfg.SweepProbability {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.SweepOrphans(ctx); err != nil {
			log.Errorf("sweep orphans: %v", err)
		}
	}()
}

func (s *UploadService) afterUpload(ctx context.Context, file model.FileRecord) {
	if err := utils.InvalidateUserFileListCache(ctx, s.cache, file.UserID); err != nil {
		log.Warnf("invalidate file list cache for user %d: %v", file.UserID, err)
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if file.IsImage() {
			if err := s.thumbs.Dispatch(context.Background(), file); err != nil {
				log.Warnf("thumbnail dispatch for %s: %v", file.Filename, err)
			}
		}
		s.events.Publish(file.UserID, realtime.EventFileUploaded, file)
	}()
}

func (s *UploadService) loadSession(ctx context.Context, userID uint64, uploadID string) (*model.UploadSession, error) {
	if uploadID == "" {
		return nil, fmt.Errorf("%w: uploadId required", ErrInvalidInput)
	}
	var session model.UploadSession
	err := s.db.WithContext(ctx).Where("upload_id = ?", uploadID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionForbidden
	}
	return &session, nil
}

func (s *UploadService) reopenSession(uploadID string) {
	err := s.db.Model(&model.UploadSession{}).
		Where("upload_id = ?", uploadID).
		Update("status", model.UploadStatusUploading).Error
	if err != nil {
		log.Warnf("reopen upload session %s: %v", uploadID, err)
	}
}

// discardUpload drops whatever is left of an upload once it is finalized
// or failed: chunk files, chunk rows and the session row.
func (s *UploadService) discardUpload(uploadID string) {
	s.recorder.Wait(uploadID)
	if _, err := s.chunks.RemoveUpload(uploadID); err != nil {
		log.Warnf("remove chunks of %s: %v", uploadID, err)
	}
	if err := s.db.Where("upload_id = ?", uploadID).Delete(&model.ChunkRecord{}).Error; err != nil {
		log.Warnf("delete chunk records of %s: %v", uploadID, err)
	}
	if err := s.db.Where("upload_id = ?", uploadID).Delete(&model.UploadSession{}).Error; err != nil {
		log.Warnf("delete upload session %s: %v", uploadID, err)
	}
}

func (s *UploadService) dropChunk(uploadID string, index int) {
	if err := s.chunks.Remove(uploadID, index); err != nil {
		log.Warnf("remove late chunk %s/%d: %v", uploadID, index, err)
	}
	s.recorder.Wait(uploadID)
	err := s.db.Where("upload_id = ? AND chunk_index = ?", uploadID, index).Delete(&model.ChunkRecord{}).Error
	if err != nil {
		log.Warnf("delete late chunk record %s/%d: %v", uploadID, index, err)
	}
}

func (s *UploadService) removeObject(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.RemoveObject(ctx, key); err != nil {
		log.Warnf("remove partial object %s: %v", key, err)
	}
}

func normalizeSource(source string) (string, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return model.SourceUser, nil
	}
	if !model.ValidSource(source) {
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidInput, source)
	}
	return source, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// chunkReader streams chunks 0..total-1 in index order, deleting each
// chunk file once it has been read to EOF.
type chunkReader struct {
	ctx      context.Context
	chunks   *chunkstore.Store
	uploadID string
	total    int
	next     int
	cur      *os.File
}

func newChunkReader(ctx context.Context, chunks *chunkstore.Store, uploadID string, total int) *chunkReader {
	return &chunkReader{ctx: ctx, chunks: chunks, uploadID: uploadID, total: total}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		if r.cur == nil {
			if r.next >= r.total {
				return 0, io.EOF
			}
			f, err := r.chunks.Open(r.uploadID, r.next)
			if err != nil {
				if errors.Is(err, chunkstore.ErrChunkNotFound) {
					return 0, fmt.Errorf("%w: index %d of %d", ErrChunkMissing, r.next, r.total)
				}
				return 0, err
			}
			r.cur = f
		}
		n, err := r.cur.Read(p)
		if err == io.EOF {
			r.cur.Close()
			r.cur = nil
			if rmErr := r.chunks.Remove(r.uploadID, r.next); rmErr != nil {
				log.Warnf("remove consumed chunk %s/%d: %v", r.uploadID, r.next, rmErr)
			}
			r.next++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *chunkReader) Close() {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
}
