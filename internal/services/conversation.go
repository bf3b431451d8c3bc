package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/repos"
	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

// autoTitleRunes bounds the title a new chat takes from its first question.
const autoTitleRunes = 60

// MaxQueryLength bounds a single question in runes.
const MaxQueryLength = 4000

type AskResult struct {
	ChatID   uuid.UUID      `json:"chatId"`
	Answer   string         `json:"answer"`
	Grounded bool           `json:"grounded"`
	Sources  []types.Source `json:"sources"`
}

type ConversationService interface {
	// Ask answers query inside chatID, or inside a new chat when chatID is nil,
	// and stores both sides of the exchange.
	Ask(dbc dbctx.Context, chatID *uuid.UUID, query string) (*AskResult, error)
}

type conversationService struct {
	db        *gorm.DB
	log       *logger.Logger
	chats     ChatService
	chatRepo  repos.ChatRepo
	messages  repos.MessageRepo
	assistant AssistantService
}

func NewConversationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	chats ChatService,
	chatRepo repos.ChatRepo,
	messageRepo repos.MessageRepo,
	assistant AssistantService,
) ConversationService {
	return &conversationService{
		db:        db,
		log:       baseLog.With("service", "ConversationService"),
		chats:     chats,
		chatRepo:  chatRepo,
		messages:  messageRepo,
		assistant: assistant,
	}
}

func (s *conversationService) Ask(dbc dbctx.Context, chatID *uuid.UUID, query string) (*AskResult, error) {
	uid, err := callerID(dbc)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierr.Invalid("query", "must not be empty")
	}
	if len([]rune(query)) > MaxQueryLength {
		return nil, apierr.Invalid("query", fmt.Sprintf("must be at most %d characters", MaxQueryLength))
	}

	var chat *types.Chat
	if chatID != nil {
		chat, err = s.chats.GetOwnedChat(dbc, *chatID)
		if err != nil {
			return nil, err
		}
	}

	askedAt := time.Now().UTC()
	answer, err := s.assistant.AnswerQuery(dbc.Ctx, query)
	if err != nil {
		return nil, err
	}
	answeredAt := time.Now().UTC()
	if !answeredAt.After(askedAt) {
		answeredAt = askedAt.Add(time.Microsecond)
	}

	meta, err := json.Marshal(types.MessageMetadata{Model: answer.Model, Sources: answer.Sources})
	if err != nil {
		return nil, fmt.Errorf("encode message metadata: %w", err)
	}

	err = s.inTx(dbc, func(tx dbctx.Context) error {
		if chat == nil {
			created, err := s.chatRepo.Create(tx, &types.Chat{
				UserID:    uid,
				Title:     autoTitle(query),
				CreatedAt: askedAt,
				UpdatedAt: askedAt,
			})
			if err != nil {
				return fmt.Errorf("create chat: %w", err)
			}
			chat = created
		}
		// the chat may have been deleted while the model was answering
		ok, err := s.chatRepo.Touch(tx, chat.ID, uid, answeredAt)
		if err != nil {
			return fmt.Errorf("bump chat: %w", err)
		}
		if !ok {
			return fmt.Errorf("chat %s: %w", chat.ID, apierr.ErrNotFound)
		}
		if _, err := s.messages.Create(tx, []*types.Message{
			{ChatID: chat.ID, From: types.FromUser, Content: query, CreatedAt: askedAt},
			{
				ChatID:    chat.ID,
				From:      types.FromAssistant,
				Content:   answer.Text,
				Grounded:  answer.Grounded,
				Metadata:  datatypes.JSON(meta),
				CreatedAt: answeredAt,
			},
		}); err != nil {
			return fmt.Errorf("store messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Query answered", "user_id", uid, "chat_id", chat.ID, "grounded", answer.Grounded, "sources", len(answer.Sources))
	sources := answer.Sources
	if sources == nil {
		sources = []types.Source{}
	}
	return &AskResult{ChatID: chat.ID, Answer: answer.Text, Grounded: answer.Grounded, Sources: sources}, nil
}

func (s *conversationService) inTx(dbc dbctx.Context, fn func(tx dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}

// autoTitle is the first autoTitleRunes runes of query on one line.
func autoTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	r := []rune(title)
	if len(r) > autoTitleRunes {
		title = strings.TrimSpace(string(r[:autoTitleRunes]))
	}
	if title == "" {
		return types.DefaultChatTitle
	}
	return title
}
