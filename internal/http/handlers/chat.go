package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/http/response"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/services"
)

type ChatHandler struct {
	log          *logger.Logger
	chat         services.ChatService
	conversation services.ConversationService
}

func NewChatHandler(log *logger.Logger, chat services.ChatService, conversation services.ConversationService) *ChatHandler {
	return &ChatHandler{
		log:          log.With("handler", "ChatHandler"),
		chat:         chat,
		conversation: conversation,
	}
}

type askReq struct {
	Query  string  `json:"query" binding:"required"`
	ChatID *string `json:"chatId" binding:"omitempty,uuid"`
}

// POST /api/chat
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askReq
	if err := bindJSON(c, &req); err != nil {
		response.RespondServiceError(c, h.log, err, "ask_failed", "could not answer query")
		return
	}
	var chatID *uuid.UUID
	if req.ChatID != nil {
		id, err := uuid.Parse(*req.ChatID)
		if err != nil {
			response.RespondServiceError(c, h.log, apierr.Invalid("chatId", "must be a valid UUID"), "ask_failed", "could not answer query")
			return
		}
		chatID = &id
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	res, err := h.conversation.Ask(dbc, chatID, req.Query)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "ask_failed", "could not answer query")
		return
	}
	response.RespondOK(c, res)
}

type createChatReq struct {
	Title string `json:"title" binding:"max=100"`
}

// POST /api/chats
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req createChatReq
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			response.RespondServiceError(c, h.log, err, "create_chat_failed", "could not create chat")
			return
		}
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chat, err := h.chat.CreateChat(dbc, req.Title)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "create_chat_failed", "could not create chat")
		return
	}
	c.JSON(http.StatusCreated, services.ChatSummary{
		ID:        chat.ID,
		Title:     chat.Title,
		Starred:   chat.Starred,
		UpdatedAt: chat.UpdatedAt,
	})
}

// GET /api/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chats, err := h.chat.ListChats(dbc)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "fetch_chats_failed", "could not fetch chats")
		return
	}
	response.RespondOK(c, chats)
}

type renameChatReq struct {
	Title string `json:"title" binding:"required,max=100"`
}

// PATCH /api/chats/:chatId
func (h *ChatHandler) RenameChat(c *gin.Context) {
	chatID, err := chatIDParam(c)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "rename_chat_failed", "could not rename chat")
		return
	}
	var req renameChatReq
	if err := bindJSON(c, &req); err != nil {
		response.RespondServiceError(c, h.log, err, "rename_chat_failed", "could not rename chat")
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chat, err := h.chat.RenameChat(dbc, chatID, req.Title)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "rename_chat_failed", "could not rename chat")
		return
	}
	response.RespondOK(c, gin.H{"id": chat.ID, "title": chat.Title})
}

type starChatReq struct {
	Starred *bool `json:"starred" binding:"required"`
}

// PUT /api/chats/:chatId/star
func (h *ChatHandler) StarChat(c *gin.Context) {
	chatID, err := chatIDParam(c)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "star_chat_failed", "could not star chat")
		return
	}
	var req starChatReq
	if err := bindJSON(c, &req); err != nil {
		response.RespondServiceError(c, h.log, err, "star_chat_failed", "could not star chat")
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	chat, err := h.chat.StarChat(dbc, chatID, *req.Starred)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "star_chat_failed", "could not star chat")
		return
	}
	response.RespondOK(c, gin.H{"id": chat.ID, "starred": chat.Starred})
}

// DELETE /api/chats/:chatId
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chatID, err := chatIDParam(c)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "delete_chat_failed", "could not delete chat")
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := h.chat.DeleteChat(dbc, chatID); err != nil {
		response.RespondServiceError(c, h.log, err, "delete_chat_failed", "could not delete chat")
		return
	}
	response.RespondOK(c, gin.H{"chatId": chatID})
}

type messageView struct {
	ID        uuid.UUID      `json:"id"`
	From      string         `json:"from"`
	Content   string         `json:"content"`
	Grounded  bool           `json:"grounded"`
	Sources   []types.Source `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// GET /api/chats/:chatId/messages
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID, err := chatIDParam(c)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "fetch_messages_failed", "could not fetch messages")
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	msgs, err := h.chat.ListMessages(dbc, chatID)
	if err != nil {
		response.RespondServiceError(c, h.log, err, "fetch_messages_failed", "could not fetch messages")
		return
	}
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		v := messageView{
			ID:        m.ID,
			From:      m.From,
			Content:   m.Content,
			Grounded:  m.Grounded,
			CreatedAt: m.CreatedAt,
		}
		if len(m.Metadata) > 0 {
			var meta types.MessageMetadata
			if err := json.Unmarshal(m.Metadata, &meta); err == nil {
				v.Sources = meta.Sources
			}
		}
		out = append(out, v)
	}
	response.RespondOK(c, out)
}
