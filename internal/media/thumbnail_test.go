package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go_Drop/internal/storage"
	"Go_Drop/model"
)

func putPNG(t *testing.T, store storage.Store, filename string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	_, err := store.PutObject(context.Background(), storage.FileKey(filename), &buf, int64(buf.Len()),
		storage.PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
}

func decodeBounds(t *testing.T, store storage.Store, key string) image.Rectangle {
	t.Helper()
	rc, _, err := store.GetObject(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	img, _, err := image.Decode(rc)
	require.NoError(t, err)
	return img.Bounds()
}

func TestGenerateWritesBothSizes(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	putPNG(t, store, "wide.png", 400, 200)

	thumbs := NewThumbnailer(store, 100, 40)
	require.NoError(t, thumbs.Generate(context.Background(), "wide.png"))

	large := decodeBounds(t, store, storage.ThumbKey("wide.png", false))
	assert.Equal(t, 100, large.Dx())
	assert.Equal(t, 50, large.Dy())

	small := decodeBounds(t, store, storage.ThumbKey("wide.png", true))
	assert.Equal(t, 40, small.Dx())
	assert.Equal(t, 20, small.Dy())
}

func TestGenerateDoesNotUpscale(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	putPNG(t, store, "tiny.png", 30, 20)

	require.NoError(t, NewThumbnailer(store, 100, 40).Generate(context.Background(), "tiny.png"))
	b := decodeBounds(t, store, storage.ThumbKey("tiny.png", false))
	assert.Equal(t, 30, b.Dx())
	assert.Equal(t, 20, b.Dy())
}

func TestGenerateFailsOnUndecodableSource(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	body := []byte("not an image")
	_, err = store.PutObject(context.Background(), storage.FileKey("broken.png"), bytes.NewReader(body), int64(len(body)), storage.PutOptions{})
	require.NoError(t, err)

	thumbs := NewThumbnailer(store, 100, 40)
	assert.Error(t, thumbs.Generate(context.Background(), "broken.png"))
	assert.Error(t, thumbs.Generate(context.Background(), "missing.png"))

	_, err = store.StatObject(context.Background(), storage.ThumbKey("broken.png", false))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestLocalDispatcherRendersQueuedJobs(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	putPNG(t, store, "a.png", 64, 64)
	putPNG(t, store, "b.png", 64, 64)

	d := NewLocalDispatcher(NewThumbnailer(store, 32, 16), 2, 4)
	require.NoError(t, d.Dispatch(context.Background(), model.FileRecord{Filename: "a.png"}))
	require.NoError(t, d.Dispatch(context.Background(), model.FileRecord{Filename: "b.png"}))
	d.Close()

	for _, name := range []string{"a.png", "b.png"} {
		for _, small := range []bool{false, true} {
			_, err := store.StatObject(context.Background(), storage.ThumbKey(name, small))
			assert.NoError(t, err, name)
		}
	}
}

func TestLocalDispatcherRejectsWhenFull(t *testing.T) {
	d := &LocalDispatcher{jobs: make(chan string, 1), timeout: time.Second}
	require.NoError(t, d.Dispatch(context.Background(), model.FileRecord{Filename: "a.png"}))
	assert.ErrorIs(t, d.Dispatch(context.Background(), model.FileRecord{Filename: "b.png"}), ErrQueueFull)
}
