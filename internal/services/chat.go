package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/repos"
	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/ctxutil"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

// ChatSummary is one row of the sidebar listing.
type ChatSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Starred   bool      `json:"starred"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatService interface {
	CreateChat(dbc dbctx.Context, title string) (*types.Chat, error)
	ListChats(dbc dbctx.Context) ([]ChatSummary, error)
	RenameChat(dbc dbctx.Context, chatID uuid.UUID, title string) (*types.Chat, error)
	StarChat(dbc dbctx.Context, chatID uuid.UUID, starred bool) (*types.Chat, error)
	DeleteChat(dbc dbctx.Context, chatID uuid.UUID) error
	// ListMessages returns the chat's messages oldest first.
	ListMessages(dbc dbctx.Context, chatID uuid.UUID) ([]*types.Message, error)
	// GetOwnedChat returns ErrNotFound both for missing chats and for chats
	// owned by someone else.
	GetOwnedChat(dbc dbctx.Context, chatID uuid.UUID) (*types.Chat, error)
}

type chatService struct {
	db       *gorm.DB
	log      *logger.Logger
	chats    repos.ChatRepo
	messages repos.MessageRepo
}

func NewChatService(db *gorm.DB, baseLog *logger.Logger, chatRepo repos.ChatRepo, messageRepo repos.MessageRepo) ChatService {
	return &chatService{
		db:       db,
		log:      baseLog.With("service", "ChatService"),
		chats:    chatRepo,
		messages: messageRepo,
	}
}

func callerID(dbc dbctx.Context) (string, error) {
	uid := strings.TrimSpace(ctxutil.UserID(dbc.Ctx))
	if uid == "" {
		return "", apierr.ErrUnauthorized
	}
	return uid, nil
}

// normalizeTitle trims title and enforces 1..MaxChatTitleLength runes.
func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n == 0 {
		return "", apierr.Invalid("title", "must not be empty")
	}
	if n > types.MaxChatTitleLength {
		return "", apierr.Invalid("title", fmt.Sprintf("must be at most %d characters", types.MaxChatTitleLength))
	}
	return title, nil
}

func (s *chatService) CreateChat(dbc dbctx.Context, title string) (*types.Chat, error) {
	uid, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = types.DefaultChatTitle
	}
	title, err = normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.Create(dbc, &types.Chat{UserID: uid, Title: title})
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.log.Info("Chat created", "user_id", uid, "chat_id", chat.ID)
	return chat, nil
}

func (s *chatService) ListChats(dbc dbctx.Context) ([]ChatSummary, error) {
	uid, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	rows, err := s.chats.ListByUser(dbc, uid, 0)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	out := make([]ChatSummary, 0, len(rows))
	for _, c := range rows {
		out = append(out, ChatSummary{ID: c.ID, Title: c.Title, Starred: c.Starred, UpdatedAt: c.UpdatedAt})
	}
	return out, nil
}

func (s *chatService) GetOwnedChat(dbc dbctx.Context, chatID uuid.UUID) (*types.Chat, error) {
	uid, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	if chatID == uuid.Nil {
		return nil, apierr.Invalid("chatId", "must be a valid UUID")
	}
	chat, err := s.chats.GetByID(dbc, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil || chat.UserID != uid {
		return nil, fmt.Errorf("chat %s: %w", chatID, apierr.ErrNotFound)
	}
	return chat, nil
}

func (s *chatService) RenameChat(dbc dbctx.Context, chatID uuid.UUID, title string) (*types.Chat, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	chat, err := s.GetOwnedChat(dbc, chatID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.chats.UpdateFields(dbc, chat.ID, map[string]interface{}{"title": title, "updated_at": now}); err != nil {
		return nil, fmt.Errorf("rename chat: %w", err)
	}
	chat.Title = title
	chat.UpdatedAt = now
	return chat, nil
}

func (s *chatService) StarChat(dbc dbctx.Context, chatID uuid.UUID, starred bool) (*types.Chat, error) {
	chat, err := s.GetOwnedChat(dbc, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Starred == starred {
		return chat, nil
	}
	now := time.Now().UTC()
	if err := s.chats.UpdateFields(dbc, chat.ID, map[string]interface{}{"starred": starred, "updated_at": now}); err != nil {
		return nil, fmt.Errorf("star chat: %w", err)
	}
	chat.Starred = starred
	chat.UpdatedAt = now
	return chat, nil
}

func (s *chatService) DeleteChat(dbc dbctx.Context, chatID uuid.UUID) error {
	chat, err := s.GetOwnedChat(dbc, chatID)
	if err != nil {
		return err
	}
	if err := s.chats.Delete(dbc, chat.ID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	s.log.Info("Chat deleted", "user_id", chat.UserID, "chat_id", chat.ID)
	return nil
}

func (s *chatService) ListMessages(dbc dbctx.Context, chatID uuid.UUID) ([]*types.Message, error) {
	chat, err := s.GetOwnedChat(dbc, chatID)
	if err != nil {
		return nil, err
	}
	rows, err := s.messages.ListByChat(dbc, chat.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return rows, nil
}
