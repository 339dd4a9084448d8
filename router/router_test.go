package router

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go_Drop/config"
	"Go_Drop/internal/client"
	"Go_Drop/internal/handler"
	"Go_Drop/internal/realtime"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/service"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/storage/chunkstore"
)

type testServer struct {
	*httptest.Server
	uploads *service.UploadService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "router-test"
	config.AppConfig.MaxMultipartMemory = 1 << 20
	config.AppConfig.MaxRequestBytes = 64 << 20

	root := t.TempDir()
	db, err := repo.OpenSQLite(filepath.Join(root, "test.db"))
	require.NoError(t, err)
	store, err := storage.NewLocalStore(root)
	require.NoError(t, err)
	chunks, err := chunkstore.New(filepath.Join(root, "chunks"))
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.NewMemoryPresence())
	uploads := service.NewUploadService(service.UploadDeps{
		DB:     db,
		Chunks: chunks,
		Store:  store,
		Events: hub,
		Storage: config.StorageConfig{
			ChunkMaxAge:  time.Hour,
			MergeLockTTL: time.Minute,
		},
	})
	engine := InitRouter(Handlers{
		Auth:     handler.NewAuthHandler(service.NewUserService(db, nil, nil, "")),
		Uploads:  handler.NewUploadHandler(uploads),
		Files:    handler.NewFileHandler(service.NewFileService(db, store, nil, hub)),
		Messages: handler.NewMessageHandler(service.NewMessageService(db, hub)),
		Realtime: handler.NewRealtimeHandler(hub),
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		uploads.Wait()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &testServer{Server: srv, uploads: uploads}
}

func (s *testServer) do(t *testing.T, method, path, token, contentType string, body io.Reader) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return res.StatusCode, out
}

func (s *testServer) postJSON(t *testing.T, path, token string, v interface{}) (int, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, token, "application/json", bytes.NewReader(b))
}

func (s *testServer) signup(t *testing.T, name string) string {
	t.Helper()
	code, _ := s.postJSON(t, "/api/register", "", map[string]string{
		"username": name, "password": "secret1", "email": name + "@example.com",
	})
	require.Equal(t, http.StatusCreated, code)
	code, body := s.postJSON(t, "/api/login", "", map[string]string{"username": name, "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func chunkForm(t *testing.T, fields map[string]string, content []byte) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if content != nil {
		part, err := w.CreateFormFile("chunk", "blob")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType(), &buf
}

func TestHealthAndAuthRequired(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = s.postJSON(t, "/api/upload/init", "", map[string]interface{}{"filename": "a", "totalChunks": 1})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.postJSON(t, "/api/upload/init", "garbage", map[string]interface{}{"filename": "a", "totalChunks": 1})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = s.postJSON(t, "/api/login", "", map[string]string{"username": "ghost", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, body["error"])
}

func TestUploadEndpointsStatusCodes(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bobby")

	code, body := s.postJSON(t, "/api/upload/init", alice, map[string]interface{}{
		"filename": "report.txt", "totalChunks": 3, "fileSize": 9, "source": "drive",
	})
	require.Equal(t, http.StatusOK, code)
	uploadID, _ := body["uploadId"].(string)
	require.NotEmpty(t, uploadID)

	code, _ = s.postJSON(t, "/api/upload/init", alice, map[string]interface{}{"filename": "x", "totalChunks": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	ct, form := chunkForm(t, map[string]string{"chunkIndex": "0"}, []byte("aaa"))
	code, _ = s.do(t, http.MethodPost, "/api/upload/chunk", alice, ct, form)
	assert.Equal(t, http.StatusBadRequest, code, "missing uploadId")

	ct, form = chunkForm(t, map[string]string{"uploadId": uploadID, "chunkIndex": "0"}, nil)
	code, _ = s.do(t, http.MethodPost, "/api/upload/chunk", alice, ct, form)
	assert.Equal(t, http.StatusBadRequest, code, "missing chunk body")

	ct, form = chunkForm(t, map[string]string{"uploadId": "1-unknown", "chunkIndex": "0"}, []byte("aaa"))
	code, _ = s.do(t, http.MethodPost, "/api/upload/chunk", alice, ct, form)
	assert.Equal(t, http.StatusNotFound, code)

	ct, form = chunkForm(t, map[string]string{"uploadId": uploadID, "chunkIndex": "0"}, []byte("aaa"))
	code, _ = s.do(t, http.MethodPost, "/api/upload/chunk", bob, ct, form)
	assert.Equal(t, http.StatusForbidden, code)

	ct, form = chunkForm(t, map[string]string{"uploadId": uploadID, "chunkIndex": "7"}, []byte("aaa"))
	code, _ = s.do(t, http.MethodPost, "/api/upload/chunk", alice, ct, form)
	assert.Equal(t, http.StatusBadRequest, code)

	for _, i := range []int{2, 0} {
		ct, form = chunkForm(t, map[string]string{"uploadId": uploadID, "chunkIndex": strconv.Itoa(i)}, []byte(fmt.Sprintf("%d%d%d", i, i, i)))
		code, body = s.do(t, http.MethodPost, "/api/upload/chunk", alice, ct, form)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, i, body["chunkIndex"])
	}

	code, _ = s.postJSON(t, "/api/upload/complete", alice, map[string]interface{}{"uploadId": uploadID, "totalChunks": 3})
	assert.Equal(t, http.StatusConflict, code)

	ct, form = chunkForm(t, map[string]string{"uploadId": uploadID, "chunkIndex": "1"}, []byte("111"))
	code, _ = s.do(t, http.MethodPost, "/api/upload/chunk", alice, ct, form)
	require.Equal(t, http.StatusOK, code)

	code, body = s.postJSON(t, "/api/upload/complete", alice, map[string]interface{}{
		"uploadId": uploadID, "filename": "report.txt", "totalChunks": 3,
	})
	require.Equal(t, http.StatusOK, code)
	file, _ := body["file"].(map[string]interface{})
	require.NotNil(t, file)
	assert.EqualValues(t, 9, file["size"])
	assert.Equal(t, "drive", file["source"])
	assert.NotContains(t, file, "path")
	id := strconv.FormatFloat(file["id"].(float64), 'f', 0, 64)

	res, err := http.Get(s.URL + "/api/public/files/" + id)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/files/"+id+"/download", nil)
	req.Header.Set("Authorization", "Bearer "+alice)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "000111222", string(raw))
	assert.Contains(t, res.Header.Get("Content-Disposition"), "attachment")

	code, _ = s.do(t, http.MethodGet, "/api/files/"+id, bob, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodGet, "/api/files/"+id+"/thumbnail", alice, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.postJSON(t, "/api/upload/complete", alice, map[string]interface{}{"uploadId": uploadID})
	assert.Equal(t, http.StatusNotFound, code, "session is gone once completed")
}

func TestClientUploadsThroughRouter(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "carol")
	api := client.NewHTTPClient(s.URL, token)
	ctx := context.Background()

	big := make([]byte, 5*1024*1024+300*1024)
	_, err := rand.Read(big)
	require.NoError(t, err)
	small := []byte("tiny file")

	transport := client.NewTransport(api, client.ProfileDesktop, "chat")
	var last client.Progress
	res := transport.Upload(ctx, client.File{Name: "big.bin", Size: int64(len(big)), Reader: bytes.NewReader(big)}, func(p client.Progress) {
		last = p
	})
	require.Equal(t, client.StatusSuccess, res.Status, "%v", res.Err)
	assert.EqualValues(t, len(big), res.File.Size)
	assert.Equal(t, "chat", res.File.Source)
	assert.Equal(t, 100.0, last.Percent)

	res = transport.Upload(ctx, client.File{Name: "tiny.txt", Size: int64(len(small)), Reader: bytes.NewReader(small)}, nil)
	require.Equal(t, client.StatusSuccess, res.Status, "%v", res.Err)
	assert.EqualValues(t, len(small), res.File.Size)

	code, body := s.do(t, http.MethodGet, "/api/files?source=chat", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
}

func TestConversationRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "dave")

	code, body := s.postJSON(t, "/api/conversations", token, map[string]string{"title": "inbox"})
	require.Equal(t, http.StatusCreated, code)
	convID := strconv.FormatFloat(body["id"].(float64), 'f', 0, 64)

	code, _ = s.postJSON(t, "/api/conversations/"+convID+"/messages", token, map[string]string{"type": "text", "content": "hello"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.postJSON(t, "/api/conversations/"+convID+"/messages", token, map[string]string{"type": "sticker", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.postJSON(t, "/api/conversations/999/messages", token, map[string]string{"content": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 1)

	code, _ = s.do(t, http.MethodDelete, "/api/conversations/"+convID, token, "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodDelete, "/api/conversations/abc", token, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, "/api/online", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["devices"])
}
