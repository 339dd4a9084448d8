package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Go_Drop/internal/dto"
	"Go_Drop/internal/service"
)

type UploadHandler struct {
	uploads *service.UploadService
}

func NewUploadHandler(uploads *service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// Init opens an upload session.
func (h *UploadHandler) Init(c *gin.Context) {
	var req dto.InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	uploadID, err := h.uploads.InitUpload(c.Request.Context(), currentUserID(c), service.InitUploadInput{
		Filename:    req.Filename,
		TotalChunks: req.TotalChunks,
		FileSize:    req.FileSize,
		MimeType:    req.MimeType,
		Source:      req.Source,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.InitUploadResponse{UploadID: uploadID})
}

// Chunk stores one chunk. It responds once the bytes are on disk; the
// metadata row is written afterwards.
func (h *UploadHandler) Chunk(c *gin.Context) {
	var req dto.UploadChunkRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	receipt, err := h.uploads.SaveChunk(c.Request.Context(), currentUserID(c), req.UploadID, *req.ChunkIndex, req.Chunk)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UploadChunkResponse{Success: true, ChunkIndex: receipt.ChunkIndex})
}

// Complete reassembles the chunks of a session into a file.
func (h *UploadHandler) Complete(c *gin.Context) {
	var req dto.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	file, err := h.uploads.CompleteUpload(c.Request.Context(), currentUserID(c), service.CompleteUploadInput{
		UploadID:    req.UploadID,
		Filename:    req.Filename,
		TotalChunks: req.TotalChunks,
		MimeType:    req.MimeType,
		Source:      req.Source,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FileResponse{Success: true, File: file})
}

// Direct stores a small file sent in a single request.
func (h *UploadHandler) Direct(c *gin.Context) {
	var req dto.DirectUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	file, err := h.uploads.DirectUpload(c.Request.Context(), currentUserID(c), req.File, req.Source)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FileResponse{Success: true, File: file})
}
