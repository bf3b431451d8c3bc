package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultTitle   = "New chat"
	MaxTitleLength = 100
)

type Chat struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// UserID is the identity provider's subject; ownership checks compare against it.
	UserID string `gorm:"column:user_id;not null;index" json:"user_id"`

	Title   string `gorm:"column:title;not null" json:"title"`
	Starred bool   `gorm:"column:starred;not null;default:false" json:"starred"`

	LastMessageAt *time.Time `gorm:"column:last_message_at" json:"last_message_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Chat) TableName() string { return "chat" }

func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	return nil
}
