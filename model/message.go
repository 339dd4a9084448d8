package model

import "time"

const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

type Message struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	ConversationID uint64       `gorm:"column:conversation_id;not null;index" json:"conversationId"`
	Conversation   Conversation `gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	UserID   uint64 `gorm:"column:user_id;not null;index" json:"userId"`
	DeviceID string `gorm:"column:device_id;size:64;not null;default:''" json:"deviceId"`

	Type    string `gorm:"column:type;size:16;not null" json:"type"`
	Content string `gorm:"column:content;type:text" json:"content"`

	FileID *uint64     `gorm:"column:file_id;index" json:"fileId,omitempty"`
	File   *FileRecord `gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:SET NULL" json:"file,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name.
func (Message) TableName() string {
	return "messages"
}
