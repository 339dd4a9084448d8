package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"Go_Drop/internal/log"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/service"
	"Go_Drop/internal/storage"
	"Go_Drop/utils"
)

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrChunkIndexRange),
		errors.Is(err, service.ErrActivationInvalid):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSessionForbidden),
		errors.Is(err, service.ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrThumbnailNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrChunkMissing),
		errors.Is(err, service.ErrUploadBusy),
		errors.Is(err, service.ErrUserExists),
		errors.Is(err, repo.ErrLockBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"error": ...}. Messages of unexpected failures are
// logged and not echoed to the client.
func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal server error"
	}
	_ = c.Error(err)
	utils.Fail(c, status, msg)
}

func bindError(c *gin.Context, err error) {
	utils.Fail(c, http.StatusBadRequest, "invalid request: "+err.Error())
}

func currentUserID(c *gin.Context) uint64 {
	return c.MustGet("user_id").(uint64)
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// serveObject streams an object. attachment selects Content-Disposition.
func serveObject(c *gin.Context, rc io.ReadCloser, size int64, name, contentType string, attachment bool) {
	defer rc.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=\"%s\"", disposition, utils.SanitizeHeaderFilename(name)))
	c.Header("Content-Type", contentType)
	if size >= 0 {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		log.Warnf("stream %s: %v", name, err)
	}
}
