package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserName string `gorm:"column:user_name;type:varchar(50);not null;unique" json:"username"`

	Password string `gorm:"column:pass_word;type:varchar(255);not null" json:"-"`

	Email string `gorm:"column:email;type:varchar(255);not null;unique" json:"email"`

	NickName  string `gorm:"column:nick_name;type:varchar(80);not null;default:''" json:"nickname"`
	AvatarURL string `gorm:"column:avatar_url;type:varchar(512);not null;default:''" json:"avatarUrl"`

	IsActive bool `gorm:"column:is_active;not null;default:false" json:"isActive"`

	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "users"
}
