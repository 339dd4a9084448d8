package model

import "time"

// ChunkRecord is advisory bookkeeping for one stored chunk. The reassembler
// never reads it; the chunk file on disk is authoritative.
type ChunkRecord struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UploadID string `gorm:"column:upload_id;size:64;not null;uniqueIndex:idx_upload_chunk" json:"uploadId"`

	ChunkIndex int    `gorm:"column:chunk_index;not null;uniqueIndex:idx_upload_chunk" json:"chunkIndex"`
	ChunkSize  int64  `gorm:"column:chunk_size;not null" json:"chunkSize"`
	ChunkPath  string `gorm:"column:chunk_path;size:512;not null" json:"chunkPath"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name.
func (ChunkRecord) TableName() string {
	return "chunks"
}
