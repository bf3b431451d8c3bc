package repos

import (
	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/repos/chat"
	"github.com/meravakil/meravakil-backend/internal/data/repos/user"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type ChatRepo = chat.ChatRepo
type MessageRepo = chat.MessageRepo

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo { return user.NewUserRepo(db, log) }
func NewChatRepo(db *gorm.DB, log *logger.Logger) ChatRepo { return chat.NewChatRepo(db, log) }
func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return chat.NewMessageRepo(db, log)
}
