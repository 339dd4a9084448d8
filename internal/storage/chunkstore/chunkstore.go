// Package chunkstore keeps uploaded chunks on local disk under a
// deterministic name per (uploadId, chunkIndex) until they are reassembled.
package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const partSuffix = ".part"

// ErrChunkNotFound is returned when no chunk file exists for an index.
var ErrChunkNotFound = errors.New("chunk not found")

// Store places chunk files in one shared directory. Names are prefixed
// with the upload id, so concurrent uploads never write the same path.
type Store struct {
	dir string
}

// New creates the chunk directory if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create chunk dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Name returns the file name of a chunk: "{uploadId}-{chunkIndex}".
func Name(uploadID string, index int) string {
	return uploadID + "-" + strconv.Itoa(index)
}

// ParseName splits a chunk file name into upload id and index.
func ParseName(name string) (uploadID string, index int, ok bool) {
	name = strings.TrimSuffix(name, partSuffix)
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	sep := strings.LastIndex(name, "-")
	if sep <= 0 || sep == len(name)-1 {
		return "", 0, false
	}
	index, err := strconv.Atoi(name[sep+1:])
	if err != nil || index < 0 {
		return "", 0, false
	}
	return name[:sep], index, true
}

// Path returns the deterministic location of a chunk.
func (s *Store) Path(uploadID string, index int) string {
	return filepath.Join(s.dir, Name(uploadID, index))
}

// Put moves an uploaded multipart part into place. Parts the server
// already spooled to disk are renamed; in-memory parts are written to a
// temp name first. An existing chunk at the same index is replaced.
func (s *Store) Put(uploadID string, index int, fh *multipart.FileHeader) (int64, error) {
	src, err := fh.Open()
	if err != nil {
		return 0, fmt.Errorf("open chunk part: %w", err)
	}
	defer src.Close()

	dst := s.Path(uploadID, index)
	if f, ok := src.(*os.File); ok {
		if err := os.Rename(f.Name(), dst); err == nil {
			return fh.Size, nil
		}
		// different filesystem, copy below
	}
	return s.write(dst, src)
}

// PutReader stores the content of r as the chunk at index.
func (s *Store) PutReader(uploadID string, index int, r io.Reader) (int64, error) {
	return s.write(s.Path(uploadID, index), r)
}

func (s *Store) write(dst string, r io.Reader) (int64, error) {
	tmpPath := dst + "." + uuid.NewString()[:8] + partSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create chunk temp file: %w", err)
	}
	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write chunk: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("close chunk: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename chunk: %w", err)
	}
	return size, nil
}

// Stat returns the size of a stored chunk.
func (s *Store) Stat(uploadID string, index int) (int64, error) {
	info, err := os.Stat(s.Path(uploadID, index))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrChunkNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Open opens a stored chunk for reading.
func (s *Store) Open(uploadID string, index int) (*os.File, error) {
	f, err := os.Open(s.Path(uploadID, index))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrChunkNotFound
		}
		return nil, err
	}
	return f, nil
}

// Remove deletes one chunk. Missing chunks are not an error.
func (s *Store) Remove(uploadID string, index int) error {
	if err := os.Remove(s.Path(uploadID, index)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveUpload deletes every chunk file of an upload and returns how many
// were removed.
func (s *Store) RemoveUpload(uploadID string) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		id, _, ok := ParseName(entry.Name())
		if !ok || id != uploadID {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// List returns the indices present on disk for an upload, in directory order.
func (s *Store) List(uploadID string) ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), partSuffix) {
			continue
		}
		id, index, ok := ParseName(entry.Name())
		if ok && id == uploadID {
			out = append(out, index)
		}
	}
	return out, nil
}

// SweepResult describes one sweep pass.
type SweepResult struct {
	Removed   int
	UploadIDs []string
}

// Sweep deletes chunk files (and abandoned temp parts) last modified
// before cutoff.
func (s *Store) Sweep(cutoff time.Time) (SweepResult, error) {
	var result SweepResult
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return result, err
	}
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, err
		}
		result.Removed++
		if id, _, ok := ParseName(entry.Name()); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				result.UploadIDs = append(result.UploadIDs, id)
			}
		}
	}
	return result, nil
}
