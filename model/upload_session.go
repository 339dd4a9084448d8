package model

import "time"

const (
	UploadStatusUploading = 0
	UploadStatusMerging   = 1
)

type UploadSession struct {
	ID uint64 `gorm:"primaryKey" json:"-"`

	UploadID string `gorm:"column:upload_id;size:64;uniqueIndex;not null" json:"uploadId"`

	// bound at init so chunks and completion can be checked against the owner
	UserID uint64 `gorm:"column:user_id;not null;index" json:"userId"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	FileName    string `gorm:"column:file_name;size:255;not null" json:"filename"`
	FileSize    int64  `gorm:"column:file_size;not null" json:"fileSize"`
	MimeType    string `gorm:"column:mime_type;size:255;not null;default:''" json:"mimetype"`
	Source      string `gorm:"column:source;size:16;not null;default:'user'" json:"source"`
	TotalChunks int    `gorm:"column:total_chunks;not null" json:"totalChunks"`

	Status int `gorm:"column:status;not null;default:0" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name.
func (UploadSession) TableName() string {
	return "upload_sessions"
}
