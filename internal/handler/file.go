package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Go_Drop/internal/dto"
	"Go_Drop/internal/service"
)

type FileHandler struct {
	files *service.FileService
}

func NewFileHandler(files *service.FileService) *FileHandler {
	return &FileHandler{files: files}
}

func (h *FileHandler) List(c *gin.Context) {
	var q dto.ListFilesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	page, err := h.files.ListFiles(c.Request.Context(), currentUserID(c), q.Source, q.Page, q.PageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 50
	}
	c.JSON(http.StatusOK, dto.FileListResponse{
		Files:    page.Files,
		Total:    page.Total,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
}

func (h *FileHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	file, err := h.files.GetFile(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Update changes the public flag of a file.
func (h *FileHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	file, err := h.files.SetPublic(c.Request.Context(), currentUserID(c), id, *req.IsPublic)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

func (h *FileHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.files.DeleteFile(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *FileHandler) Download(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	file, rc, info, err := h.files.OpenFile(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	serveObject(c, rc, info.Size, file.OriginalName, file.MimeType, true)
}

// Thumbnail serves thumbs/{name}, or the small variant with ?size=small.
func (h *FileHandler) Thumbnail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rc, info, err := h.files.OpenThumbnail(c.Request.Context(), currentUserID(c), id, c.Query("size") == "small")
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	serveObject(c, rc, info.Size, "thumbnail", info.ContentType, false)
}

// PublicDownload serves a file marked public without authentication.
func (h *FileHandler) PublicDownload(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	file, rc, info, err := h.files.OpenPublicFile(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	serveObject(c, rc, info.Size, file.OriginalName, file.MimeType, c.Query("inline") == "")
}
