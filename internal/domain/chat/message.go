package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	FromUser      = "user"
	FromAssistant = "assistant"
)

type Message struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID uuid.UUID `gorm:"type:uuid;column:chat_id;not null;index" json:"chat_id"`
	Chat   *Chat     `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE" json:"-"`

	From    string `gorm:"column:sender;not null" json:"from"`
	Content string `gorm:"column:content;type:text;not null" json:"content"`

	// Grounded is only meaningful on assistant messages.
	Grounded bool           `gorm:"column:grounded;not null;default:false" json:"grounded"`
	Metadata datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string { return "chat_message" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MessageMetadata is what assistant messages record about how they were produced.
type MessageMetadata struct {
	Model   string   `json:"model,omitempty"`
	Sources []Source `json:"sources,omitempty"`
}

// Source is one retrieved passage that fed a grounded answer.
type Source struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
}
