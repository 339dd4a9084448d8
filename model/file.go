package model

import (
	"strings"
	"time"
)

// Source tags name the surface an upload came from.
const (
	SourceUser    = "user"
	SourceChat    = "chat"
	SourceDrive   = "drive"
	SourceGallery = "gallery"
)

// ValidSource reports whether s is a known source tag.
func ValidSource(s string) bool {
	switch s {
	case SourceUser, SourceChat, SourceDrive, SourceGallery:
		return true
	}
	return false
}

// FileRecord is a finalized upload. Filename and Path never change after
// creation; IsPublic is the only mutable field.
type FileRecord struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Filename     string `gorm:"column:filename;size:255;not null;uniqueIndex" json:"filename"`
	OriginalName string `gorm:"column:original_name;size:255;not null" json:"originalName"`
	MimeType     string `gorm:"column:mimetype;size:255;not null;default:''" json:"mimetype"`
	Size         int64  `gorm:"column:size;not null" json:"size"`
	Path         string `gorm:"column:path;size:512;not null" json:"-"`

	UserID uint64 `gorm:"column:user_id;not null;index:idx_files_user_source,priority:1" json:"userId"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	IsPublic bool   `gorm:"column:is_public;not null;default:false" json:"isPublic"`
	Source   string `gorm:"column:source;size:16;not null;default:'user';index:idx_files_user_source,priority:2" json:"source"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name.
func (FileRecord) TableName() string {
	return "files"
}

// IsImage reports whether thumbnails should be generated for the file.
func (f *FileRecord) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MimeType), "image/")
}
