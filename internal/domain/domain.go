package domain

import (
	"github.com/meravakil/meravakil-backend/internal/domain/chat"
	"github.com/meravakil/meravakil-backend/internal/domain/user"
)

const (
	DefaultChatTitle   = chat.DefaultTitle
	MaxChatTitleLength = chat.MaxTitleLength

	FromUser      = chat.FromUser
	FromAssistant = chat.FromAssistant
)

type (
	User            = user.User
	Chat            = chat.Chat
	Message         = chat.Message
	MessageMetadata = chat.MessageMetadata
	Source          = chat.Source
)
