package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/pinecone"
)

func newConversation(f *fixture, ai *fakeAI, store *fakeStore) ConversationService {
	return NewConversationService(f.db, logger.Nop(), f.chats, f.chatRepo, f.msgRepo, newAssistant(ai, store, AssistantConfig{}))
}

func TestAskCreatesChatAndStoresExchange(t *testing.T) {
	f := newFixture(t)
	ai := &fakeAI{text: "You may approach the Rent Court."}
	store := &fakeStore{matches: []pinecone.VectorMatch{
		{ID: "r#1", Score: 0.9, Metadata: map[string]any{"text": "Rent Court jurisdiction", "source": "rent_act.pdf"}},
	}}
	svc := newConversation(f, ai, store)

	query := "My landlord in Indiranagar refuses to return my deposit after I vacated, what can I do?"
	res, err := svc.Ask(as("user_a"), nil, query)
	require.NoError(t, err)
	assert.True(t, res.Grounded)
	assert.Equal(t, "You may approach the Rent Court.", res.Answer)
	require.Len(t, res.Sources, 1)

	chat, err := f.chats.GetOwnedChat(as("user_a"), res.ChatID)
	require.NoError(t, err)
	assert.Equal(t, string([]rune(query)[:60]), chat.Title)
	require.NotNil(t, chat.LastMessageAt)

	msgs, err := f.chats.ListMessages(as("user_a"), res.ChatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.FromUser, msgs[0].From)
	assert.Equal(t, query, msgs[0].Content)
	assert.False(t, msgs[0].Grounded)
	assert.Equal(t, types.FromAssistant, msgs[1].From)
	assert.True(t, msgs[1].Grounded)

	var meta types.MessageMetadata
	require.NoError(t, json.Unmarshal(msgs[1].Metadata, &meta))
	assert.Equal(t, "gpt-4o-mini", meta.Model)
	assert.Equal(t, "rent_act.pdf", meta.Sources[0].Source)
}

func TestAskAppendsToOwnedChat(t *testing.T) {
	f := newFixture(t)
	svc := newConversation(f, &fakeAI{text: "a"}, &fakeStore{})
	chat, err := f.chats.CreateChat(as("user_a"), "existing")
	require.NoError(t, err)

	res, err := svc.Ask(as("user_a"), &chat.ID, "first")
	require.NoError(t, err)
	assert.Equal(t, chat.ID, res.ChatID)
	assert.False(t, res.Grounded)
	assert.NotNil(t, res.Sources)

	_, err = svc.Ask(as("user_a"), &chat.ID, "second")
	require.NoError(t, err)

	msgs, err := f.chats.ListMessages(as("user_a"), chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "second", msgs[2].Content)

	reloaded, err := f.chats.GetOwnedChat(as("user_a"), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "existing", reloaded.Title)
}

func TestAskRejectsForeignChatBeforeCallingModel(t *testing.T) {
	f := newFixture(t)
	ai := &fakeAI{}
	svc := newConversation(f, ai, &fakeStore{})
	chat, err := f.chats.CreateChat(as("user_a"), "private")
	require.NoError(t, err)

	_, err = svc.Ask(as("user_b"), &chat.ID, "leak?")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	missing := uuid.New()
	_, err = svc.Ask(as("user_b"), &missing, "leak?")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	assert.Empty(t, ai.embedded)
}

func TestAskValidationAndFailures(t *testing.T) {
	f := newFixture(t)
	_, err := newConversation(f, &fakeAI{}, &fakeStore{}).Ask(as(""), nil, "q")
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)

	_, err = newConversation(f, &fakeAI{}, &fakeStore{}).Ask(as("user_a"), nil, "   ")
	assert.ErrorIs(t, err, apierr.ErrInvalidArgument)

	_, err = newConversation(f, &fakeAI{}, &fakeStore{}).Ask(as("user_a"), nil, strings.Repeat("x", MaxQueryLength+1))
	assert.ErrorIs(t, err, apierr.ErrInvalidArgument)

	boom := errors.New("model down")
	_, err = newConversation(f, &fakeAI{completeErr: boom}, &fakeStore{}).Ask(as("user_a"), nil, "q")
	assert.ErrorIs(t, err, boom)

	list, err := f.chats.ListChats(as("user_a"))
	require.NoError(t, err)
	assert.Empty(t, list, "a failed answer leaves no half-written chat")
}

// deletingAssistant removes the chat while the answer is being produced.
type deletingAssistant struct {
	f      *fixture
	chatID uuid.UUID
}

func (d *deletingAssistant) AnswerQuery(ctx context.Context, _ string) (*Answer, error) {
	if err := d.f.chatRepo.Delete(dbctx.Context{Ctx: ctx}, d.chatID); err != nil {
		return nil, err
	}
	return &Answer{Text: "too late", Model: "gpt-4o-mini"}, nil
}

func TestAskChatDeletedWhileAnswering(t *testing.T) {
	f := newFixture(t)
	chat, err := f.chats.CreateChat(as("user_a"), "short lived")
	require.NoError(t, err)

	svc := NewConversationService(f.db, logger.Nop(), f.chats, f.chatRepo, f.msgRepo, &deletingAssistant{f: f, chatID: chat.ID})
	_, err = svc.Ask(as("user_a"), &chat.ID, "still there?")
	assert.ErrorIs(t, err, apierr.ErrNotFound)

	var n int64
	require.NoError(t, f.db.Model(&types.Message{}).Where("chat_id = ?", chat.ID).Count(&n).Error)
	assert.Zero(t, n, "no messages may outlive their chat")
}

func TestAutoTitle(t *testing.T) {
	assert.Equal(t, "a b c", autoTitle(" a\n b\tc "))
	assert.Equal(t, types.DefaultChatTitle, autoTitle(""))
	assert.Equal(t, 60, len([]rune(autoTitle(strings.Repeat("ಕ", 80)))))
}
