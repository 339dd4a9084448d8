package dto

import "Go_Drop/model"

type ErrorResponse struct {
	Error string `json:"error"`
}

type InitUploadResponse struct {
	UploadID string `json:"uploadId"`
}

type UploadChunkResponse struct {
	Success    bool `json:"success"`
	ChunkIndex int  `json:"chunkIndex"`
}

// FileResponse is returned by the complete and direct upload endpoints.
type FileResponse struct {
	Success bool              `json:"success"`
	File    *model.FileRecord `json:"file"`
}

type FileListResponse struct {
	Files    []model.FileRecord `json:"files"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type RegisterResponse struct {
	PendingActivation bool        `json:"pendingActivation"`
	User              *model.User `json:"user,omitempty"`
}
