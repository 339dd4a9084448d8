package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gorm.io/gorm"

	"Go_Drop/internal/log"
	"Go_Drop/internal/realtime"
	"Go_Drop/internal/storage"
	"Go_Drop/model"
	"Go_Drop/utils"
)

// FileService serves the drive and gallery views over FileRecords.
type FileService struct {
	db     *gorm.DB
	store  storage.Store
	cache  utils.Cache
	events EventPublisher
}

func NewFileService(db *gorm.DB, store storage.Store, cache utils.Cache, events EventPublisher) *FileService {
	if cache == nil {
		cache = utils.NewMemoryCache()
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &FileService{db: db, store: store, cache: cache, events: events}
}

// ListFiles returns one page of the user's files, newest first. An empty
// source lists every source.
func (s *FileService) ListFiles(ctx context.Context, userID uint64, source string, page, pageSize int) (*utils.FileListCache, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	if source != "" && !model.ValidSource(source) {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, source)
	}
	if cached, ok := utils.GetUserFileListFromCache(ctx, s.cache, userID, source, page, pageSize); ok {
		return cached, nil
	}

	query := s.db.WithContext(ctx).Model(&model.FileRecord{}).Where("user_id = ?", userID)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	query = query.Session(&gorm.Session{})
	var result utils.FileListCache
	if err := query.Count(&result.Total).Error; err != nil {
		return nil, err
	}
	result.Files = make([]model.FileRecord, 0, pageSize)
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&result.Files).Error; err != nil {
		return nil, err
	}
	if err := utils.SetUserFileListToCache(ctx, s.cache, userID, source, page, pageSize, &result); err != nil {
		log.Warnf("cache file list for user %d: %v", userID, err)
	}
	return &result, nil
}

// GetFile returns a file owned by userID.
func (s *FileService) GetFile(ctx context.Context, userID, fileID uint64) (*model.FileRecord, error) {
	var file model.FileRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", fileID, userID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// SetPublic flips the only mutable attribute of a file.
func (s *FileService) SetPublic(ctx context.Context, userID, fileID uint64, public bool) (*model.FileRecord, error) {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(file).Update("is_public", public).Error; err != nil {
		return nil, err
	}
	file.IsPublic = public
	s.invalidate(ctx, userID)
	s.events.Publish(userID, realtime.EventFileUpdated, file)
	return file, nil
}

// DeleteFile removes the row, the object and its thumbnails.
func (s *FileService) DeleteFile(ctx context.Context, userID, fileID uint64) error {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.FileRecord{}, file.ID).Error; err != nil {
		return err
	}
	for _, key := range []string{file.Path, storage.ThumbKey(file.Filename, false), storage.ThumbKey(file.Filename, true)} {
		if err := s.store.RemoveObject(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			log.Warnf("remove object %s: %v", key, err)
		}
	}
	s.invalidate(ctx, userID)
	s.events.Publish(userID, realtime.EventFileDeleted, FileDeletedEvent{ID: file.ID, Filename: file.Filename})
	return nil
}

// OpenFile opens the stored bytes of a file owned by userID.
func (s *FileService) OpenFile(ctx context.Context, userID, fileID uint64) (*model.FileRecord, io.ReadCloser, storage.ObjectInfo, error) {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return nil, nil, storage.ObjectInfo{}, err
	}
	return s.open(ctx, file)
}

// OpenPublicFile opens a file whose owner marked it public.
func (s *FileService) OpenPublicFile(ctx context.Context, fileID uint64) (*model.FileRecord, io.ReadCloser, storage.ObjectInfo, error) {
	var file model.FileRecord
	err := s.db.WithContext(ctx).Where("id = ? AND is_public = ?", fileID, true).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, storage.ObjectInfo{}, ErrFileNotFound
	}
	if err != nil {
		return nil, nil, storage.ObjectInfo{}, err
	}
	return s.open(ctx, &file)
}

func (s *FileService) open(ctx context.Context, file *model.FileRecord) (*model.FileRecord, io.ReadCloser, storage.ObjectInfo, error) {
	rc, info, err := s.store.GetObject(ctx, file.Path)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, storage.ObjectInfo{}, ErrFileNotFound
	}
	if err != nil {
		return nil, nil, storage.ObjectInfo{}, err
	}
	return file, rc, info, nil
}

// OpenThumbnail opens a rendered thumbnail. A missing thumbnail is
// ErrThumbnailNotFound, never a server error.
func (s *FileService) OpenThumbnail(ctx context.Context, userID, fileID uint64, small bool) (io.ReadCloser, storage.ObjectInfo, error) {
	file, err := s.GetFile(ctx, userID, fileID)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if !file.IsImage() {
		return nil, storage.ObjectInfo{}, ErrThumbnailNotFound
	}
	rc, info, err := s.store.GetObject(ctx, storage.ThumbKey(file.Filename, small))
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			log.Warnf("open thumbnail of %s: %v", file.Filename, err)
		}
		return nil, storage.ObjectInfo{}, ErrThumbnailNotFound
	}
	if info.ContentType == "" {
		info.ContentType = file.MimeType
	}
	return rc, info, nil
}

func (s *FileService) invalidate(ctx context.Context, userID uint64) {
	if err := utils.InvalidateUserFileListCache(ctx, s.cache, userID); err != nil {
		log.Warnf("invalidate file list cache for user %d: %v", userID, err)
	}
}

// FileDeletedEvent is the payload of a file_deleted event.
type FileDeletedEvent struct {
	ID       uint64 `json:"id"`
	Filename string `json:"filename"`
}
