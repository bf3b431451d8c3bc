package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error)
	ListByChat(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error) {
	if len(rows) == 0 {
		return []*types.Message{}, nil
	}
	now := time.Now().UTC()
	for _, m := range rows {
		if m.ChatID == uuid.Nil {
			return nil, fmt.Errorf("missing chat_id")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByChat returns the oldest limit messages in send order.
func (r *messageRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*types.Message, error) {
	if chatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var out []*types.Message
	if err := dbc.DB(r.db).
		Model(&types.Message{}).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

