package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned when a key has no object.
var ErrObjectNotFound = errors.New("object not found")

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store abstracts object storage operations. Keys are slash separated,
// e.g. "files/<name>" or "thumbs/<name>_small".
type Store interface {
	// PutObject stores reader under key. size may be -1 when unknown. A
	// failed put leaves no object behind.
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	StatObject(ctx context.Context, key string) (ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
}

// FileKey is the object key of a finalized upload.
func FileKey(filename string) string {
	return "files/" + filename
}

// ThumbKey is the object key of a thumbnail; small selects the smaller size.
func ThumbKey(filename string, small bool) string {
	if small {
		return "thumbs/" + filename + "_small"
	}
	return "thumbs/" + filename
}
