package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps objects as files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// PutObject writes to a temp file, fsyncs and renames it into place.
func (s *LocalStore) PutObject(ctx context.Context, key string, reader io.Reader, _ int64, opts PutOptions) (ObjectInfo, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return ObjectInfo{}, err
	}
	tmpPath := fullPath + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return ObjectInfo{}, err
	}

	size, err := io.Copy(f, &ctxReader{ctx: ctx, r: reader})
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return ObjectInfo{}, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return ObjectInfo{}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return ObjectInfo{}, err
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: size, ContentType: opts.ContentType}, nil
}

func (s *LocalStore) GetObject(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, err
	}
	return f, ObjectInfo{Key: key, Size: stat.Size()}, nil
}

func (s *LocalStore) StatObject(_ context.Context, key string) (ObjectInfo, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	stat, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: stat.Size()}, nil
}

// RemoveObject returns nil when the object is already gone.
func (s *LocalStore) RemoveObject(_ context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ctxReader stops a long copy once the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
