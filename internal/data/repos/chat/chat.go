package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type ChatRepo interface {
	Create(dbc dbctx.Context, row *types.Chat) (*types.Chat, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chat, error)
	ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.Chat, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Touch(dbc dbctx.Context, id uuid.UUID, userID string, at time.Time) (bool, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByUser(dbc dbctx.Context, userID string) (int64, error)
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: baseLog.With("repo", "ChatRepo")}
}

func (r *chatRepo) Create(dbc dbctx.Context, row *types.Chat) (*types.Chat, error) {
	if row == nil || strings.TrimSpace(row.UserID) == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	if err := dbc.DB(r.db).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// GetByID returns nil, nil when the chat does not exist.
func (r *chatRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chat, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Chat
	if err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// ListByUser orders starred chats first, then by most recent activity.
func (r *chatRepo) ListByUser(dbc dbctx.Context, userID string, limit int) ([]*types.Chat, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var out []*types.Chat
	if err := dbc.DB(r.db).
		Model(&types.Chat{}).
		Where("user_id = ?", userID).
		Order("starred DESC").
		Order("updated_at DESC").
		Order("id").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.Chat{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Touch bumps the chat's activity timestamps and reports whether a chat with
// that id and owner still exists. Inside a transaction on Postgres the row
// stays locked until commit, so a concurrent Delete waits for it.
func (r *chatRepo) Touch(dbc dbctx.Context, id uuid.UUID, userID string, at time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	res := dbc.DB(r.db).
		Model(&types.Chat{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"last_message_at": at, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the chat and its messages atomically.
func (r *chatRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return r.inTx(dbc, func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", id).Delete(&types.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&types.Chat{}).Error; err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		return nil
	})
}

// DeleteByUser removes every chat owned by userID together with its messages.
func (r *chatRepo) DeleteByUser(dbc dbctx.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("missing user_id")
	}
	var n int64
	err := r.inTx(dbc, func(tx *gorm.DB) error {
		owned := tx.Model(&types.Chat{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("chat_id IN (?)", owned).Delete(&types.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res := tx.Where("user_id = ?", userID).Delete(&types.Chat{})
		if res.Error != nil {
			return fmt.Errorf("delete chats: %w", res.Error)
		}
		n = res.RowsAffected
		return nil
	})
	return n, err
}

func (r *chatRepo) inTx(dbc dbctx.Context, fn func(tx *gorm.DB) error) error {
	if dbc.Tx != nil {
		return fn(dbc.DB(r.db))
	}
	return dbc.DB(r.db).Transaction(fn)
}
