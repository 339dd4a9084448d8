package dto

import "mime/multipart"

type InitUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	TotalChunks int    `json:"totalChunks" binding:"required,min=1"`
	FileSize    int64  `json:"fileSize" binding:"gte=0"`
	MimeType    string `json:"mimetype"`
	Source      string `json:"source" binding:"omitempty,oneof=user chat drive gallery"`
}

// UploadChunkRequest is bound from multipart form fields.
type UploadChunkRequest struct {
	UploadID   string                `form:"uploadId" binding:"required"`
	ChunkIndex *int                  `form:"chunkIndex" binding:"required,min=0"`
	Chunk      *multipart.FileHeader `form:"chunk" binding:"required"`
}

type CompleteUploadRequest struct {
	UploadID    string `json:"uploadId" binding:"required"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"totalChunks" binding:"gte=0"`
	MimeType    string `json:"mimetype"`
	Source      string `json:"source" binding:"omitempty,oneof=user chat drive gallery"`
}

type DirectUploadRequest struct {
	File   *multipart.FileHeader `form:"file" binding:"required"`
	Source string                `form:"source" binding:"omitempty,oneof=user chat drive gallery"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Email    string `json:"email" binding:"required,email"`
}

type ListFilesQuery struct {
	Source   string `form:"source" binding:"omitempty,oneof=user chat drive gallery"`
	Page     int    `form:"page" binding:"gte=0"`
	PageSize int    `form:"pageSize" binding:"gte=0,lte=200"`
}

type UpdateFileRequest struct {
	IsPublic *bool `json:"isPublic" binding:"required"`
}

type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=120"`
}

type ListMessagesQuery struct {
	Before uint64 `form:"before"`
	Limit  int    `form:"limit" binding:"gte=0,lte=200"`
}

type SendMessageRequest struct {
	Type     string `json:"type" binding:"omitempty,oneof=text file"`
	Content  string `json:"content"`
	FileID   uint64 `json:"fileId"`
	DeviceID string `json:"deviceId" binding:"max=64"`
}
