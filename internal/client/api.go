package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "Go_Drop pushfile"

// FileInfo is the server's view of a stored file.
type FileInfo struct {
	ID           uint64    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	Source       string    `json:"source"`
	IsPublic     bool      `json:"isPublic"`
	CreatedAt    time.Time `json:"createdAt"`
}

type InitRequest struct {
	Filename    string `json:"filename"`
	TotalChunks int    `json:"totalChunks"`
	FileSize    int64  `json:"fileSize"`
	MimeType    string `json:"mimetype,omitempty"`
	Source      string `json:"source,omitempty"`
}

type CompleteRequest struct {
	UploadID    string `json:"uploadId"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"totalChunks"`
	MimeType    string `json:"mimetype,omitempty"`
	Source      string `json:"source,omitempty"`
}

// ChunkRequest carries one byte range of a file.
type ChunkRequest struct {
	UploadID string
	Index    int
	Filename string
	Body     io.Reader
}

// API is the upload surface of the server used by Transport.
type API interface {
	InitUpload(ctx context.Context, req InitRequest) (string, error)
	UploadChunk(ctx context.Context, req ChunkRequest) error
	CompleteUpload(ctx context.Context, req CompleteRequest) (*FileInfo, error)
	DirectUpload(ctx context.Context, filename, mimeType, source string, body io.Reader) (*FileInfo, error)
}

// Error is a non-2xx answer from the server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Temporary reports whether repeating the request may succeed.
func (e *Error) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// IsStatus reports whether err is a server Error with the given code.
func IsStatus(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// HTTPClient talks to a Go_Drop server with a bearer token.
type HTTPClient struct {
	r *resty.Client
}

func NewHTTPClient(server, token string) *HTTPClient {
	r := resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	if token != "" {
		r.SetAuthToken(token)
	}
	return &HTTPClient{r: r}
}

// SetTimeout bounds each request.
func (c *HTTPClient) SetTimeout(d time.Duration) *HTTPClient {
	c.r.SetTimeout(d)
	return c
}

type errorBody struct {
	Error string `json:"error"`
}

func wrapError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		msg := ""
		if body, ok := res.Error().(*errorBody); ok {
			msg = body.Error
		}
		return nil, &Error{Code: res.StatusCode(), Message: msg}
	}
	return res, nil
}

// Login exchanges credentials for a token.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	_, err := wrapError(c.r.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/login"))
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *HTTPClient) InitUpload(ctx context.Context, req InitRequest) (string, error) {
	var out struct {
		UploadID string `json:"uploadId"`
	}
	_, err := wrapError(c.r.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/upload/init"))
	if err != nil {
		return "", err
	}
	if out.UploadID == "" {
		return "", errors.New("server returned no uploadId")
	}
	return out.UploadID, nil
}

func (c *HTTPClient) UploadChunk(ctx context.Context, req ChunkRequest) error {
	_, err := wrapError(c.r.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"uploadId":   req.UploadID,
			"chunkIndex": strconv.Itoa(req.Index),
		}).
		SetFileReader("chunk", req.Filename, req.Body).
		SetError(&errorBody{}).
		Post("/api/upload/chunk"))
	return err
}

type fileResponse struct {
	Success bool      `json:"success"`
	File    *FileInfo `json:"file"`
}

func (c *HTTPClient) CompleteUpload(ctx context.Context, req CompleteRequest) (*FileInfo, error) {
	var out fileResponse
	_, err := wrapError(c.r.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/upload/complete"))
	if err != nil {
		return nil, err
	}
	return out.File, nil
}

func (c *HTTPClient) DirectUpload(ctx context.Context, filename, mimeType, source string, body io.Reader) (*FileInfo, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	var out fileResponse
	req := c.r.R().
		SetContext(ctx).
		SetMultipartField("file", filename, mimeType, body).
		SetResult(&out).
		SetError(&errorBody{})
	if source != "" {
		req.SetFormData(map[string]string{"source": source})
	}
	if _, err := wrapError(req.Post("/api/upload/direct")); err != nil {
		return nil, err
	}
	return out.File, nil
}
