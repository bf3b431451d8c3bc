package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User mirrors an identity-provider account. Chats reference ExternalID, not ID.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID string    `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`

	Email     string `gorm:"column:email;not null;default:''" json:"email"`
	FirstName string `gorm:"column:first_name;not null;default:''" json:"first_name"`
	LastName  string `gorm:"column:last_name;not null;default:''" json:"last_name"`
	ImageURL  string `gorm:"column:image_url;not null;default:''" json:"image_url,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
