// Package media renders image thumbnails for stored files.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"

	"Go_Drop/internal/storage"
)

// Thumbnailer renders the two thumbnail sizes of an image object.
type Thumbnailer struct {
	store     storage.Store
	size      int
	smallSize int
}

func NewThumbnailer(store storage.Store, size, smallSize int) *Thumbnailer {
	if size <= 0 {
		size = 480
	}
	if smallSize <= 0 {
		smallSize = 160
	}
	return &Thumbnailer{store: store, size: size, smallSize: smallSize}
}

// Generate reads files/{filename} and writes thumbs/{filename} and
// thumbs/{filename}_small, keeping the source format.
func (t *Thumbnailer) Generate(ctx context.Context, filename string) error {
	rc, _, err := t.store.GetObject(ctx, storage.FileKey(filename))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	src, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	rc.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}

	format, err := imaging.FormatFromFilename(filename)
	if err != nil || format == imaging.TIFF || format == imaging.BMP {
		format = imaging.JPEG
	}
	contentType := formatContentType(format)

	for _, variant := range []struct {
		size  int
		small bool
	}{
		{t.size, false},
		{t.smallSize, true},
	} {
		thumb := imaging.Fit(src, variant.size, variant.size, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(80)); err != nil {
			return fmt.Errorf("encode thumbnail: %w", err)
		}
		key := storage.ThumbKey(filename, variant.small)
		if _, err := t.store.PutObject(ctx, key, &buf, int64(buf.Len()), storage.PutOptions{ContentType: contentType}); err != nil {
			return errors.Join(fmt.Errorf("store %s: %w", key, err), t.store.RemoveObject(ctx, storage.ThumbKey(filename, false)))
		}
	}
	return nil
}

func formatContentType(f imaging.Format) string {
	switch f {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
