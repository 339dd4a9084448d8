package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Go_Drop/config"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/storage/chunkstore"
	"Go_Drop/model"
)

type publishedEvent struct {
	UserID uint64
	Event  string
	Data   interface{}
}

type eventLog struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (l *eventLog) Publish(userID uint64, event string, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, publishedEvent{UserID: userID, Event: event, Data: data})
}

func (l *eventLog) named(event string) []publishedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []publishedEvent
	for _, e := range l.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type dispatchLog struct {
	mu    sync.Mutex
	files []model.FileRecord
}

func (d *dispatchLog) Dispatch(_ context.Context, file model.FileRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = append(d.files, file)
	return nil
}

func (d *dispatchLog) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.files)
}

type testEnv struct {
	db       *gorm.DB
	root     string
	chunks   *chunkstore.Store
	store    *storage.LocalStore
	events   *eventLog
	thumbs   *dispatchLog
	uploads  *UploadService
	storeCfg config.StorageConfig
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	chunks, err := chunkstore.New(filepath.Join(root, "chunks"))
	require.NoError(t, err)
	store, err := storage.NewLocalStore(root)
	require.NoError(t, err)

	env := &testEnv{
		db:     newTestDB(t),
		root:   root,
		chunks: chunks,
		store:  store,
		events: &eventLog{},
		thumbs: &dispatchLog{},
		storeCfg: config.StorageConfig{
			ChunkMaxAge:  24 * time.Hour,
			MergeLockTTL: time.Minute,
		},
	}
	env.uploads = NewUploadService(UploadDeps{
		DB:      env.db,
		Chunks:  env.chunks,
		Store:   env.store,
		Thumbs:  env.thumbs,
		Events:  env.events,
		Storage: env.storeCfg,
	})
	t.Cleanup(env.uploads.Wait)
	return env
}

// withStore rebuilds the upload service around store, keeping the rest of
// the environment.
func (e *testEnv) withStore(t *testing.T, store storage.Store) {
	t.Helper()
	e.uploads = NewUploadService(UploadDeps{
		DB:      e.db,
		Chunks:  e.chunks,
		Store:   store,
		Thumbs:  e.thumbs,
		Events:  e.events,
		Storage: e.storeCfg,
	})
	t.Cleanup(e.uploads.Wait)
}

// interceptStore runs hooks around PutObject of the wrapped store.
// afterRead runs once the whole body has been read from the caller.
type interceptStore struct {
	storage.Store
	beforePut func(key string)
	afterRead func(key string)
}

func (s *interceptStore) PutObject(ctx context.Context, key string, r io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if s.beforePut != nil {
		s.beforePut(key)
	}
	if s.afterRead == nil {
		return s.Store.PutObject(ctx, key, r, size, opts)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.afterRead(key)
	return s.Store.PutObject(ctx, key, bytes.NewReader(body), int64(len(body)), opts)
}

var userSeq atomic.Int64

func createUser(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	n := userSeq.Add(1)
	user := &model.User{
		UserName: fmt.Sprintf("user%d", n),
		Email:    fmt.Sprintf("user%d@example.com", n),
		Password: "x",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// filePart builds a parsed multipart file part the way gin hands it to
// handlers.
func filePart(t *testing.T, field, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	require.Len(t, form.File[field], 1)
	return form.File[field][0]
}

func bytesReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}
