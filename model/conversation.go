package model

import "time"

// Conversation belongs to one user and is shared by all of that user's devices.
type Conversation struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"userId"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	Title string `gorm:"column:title;size:120;not null;default:''" json:"title"`

	LastMessageAt *time.Time `gorm:"column:last_message_at" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TableName returns the database table name.
func (Conversation) TableName() string {
	return "conversations"
}
