package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
)

func TestChatServiceRequiresCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.chats.ListChats(as(""))
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
	_, err = f.chats.CreateChat(as(""), "x")
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
}

func TestCreateChatDefaultsAndValidatesTitle(t *testing.T) {
	f := newFixture(t)
	c, err := f.chats.CreateChat(as("user_a"), "   ")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultChatTitle, c.Title)
	assert.Equal(t, "user_a", c.UserID)

	_, err = f.chats.CreateChat(as("user_a"), strings.Repeat("x", 101))
	assert.ErrorIs(t, err, apierr.ErrInvalidArgument)
	assert.EqualError(t, err, "Invalid title: must be at most 100 characters")

	c, err = f.chats.CreateChat(as("user_a"), strings.Repeat("ಕ", 100))
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(c.Title)))
}

func TestOwnershipMissAndForeignChatLookTheSame(t *testing.T) {
	f := newFixture(t)
	owned, err := f.chats.CreateChat(as("user_a"), "mine")
	require.NoError(t, err)

	for name, id := range map[string]uuid.UUID{"foreign": owned.ID, "missing": uuid.New()} {
		t.Run(name, func(t *testing.T) {
			_, err := f.chats.RenameChat(as("user_b"), id, "stolen")
			assert.ErrorIs(t, err, apierr.ErrNotFound)
			_, err = f.chats.StarChat(as("user_b"), id, true)
			assert.ErrorIs(t, err, apierr.ErrNotFound)
			_, err = f.chats.ListMessages(as("user_b"), id)
			assert.ErrorIs(t, err, apierr.ErrNotFound)
			err = f.chats.DeleteChat(as("user_b"), id)
			assert.ErrorIs(t, err, apierr.ErrNotFound)
		})
	}

	got, err := f.chats.GetOwnedChat(as("user_a"), owned.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
}

func TestRenameStarListAndDelete(t *testing.T) {
	f := newFixture(t)
	a, err := f.chats.CreateChat(as("user_a"), "first")
	require.NoError(t, err)
	b, err := f.chats.CreateChat(as("user_a"), "second")
	require.NoError(t, err)
	_, err = f.chats.CreateChat(as("user_b"), "other")
	require.NoError(t, err)

	renamed, err := f.chats.RenameChat(as("user_a"), a.ID, "  Tenancy dispute  ")
	require.NoError(t, err)
	assert.Equal(t, "Tenancy dispute", renamed.Title)

	_, err = f.chats.RenameChat(as("user_a"), a.ID, "")
	assert.ErrorIs(t, err, apierr.ErrInvalidArgument)

	starred, err := f.chats.StarChat(as("user_a"), b.ID, true)
	require.NoError(t, err)
	assert.True(t, starred.Starred)

	list, err := f.chats.ListChats(as("user_a"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "starred chat is listed first")
	assert.Equal(t, "Tenancy dispute", list[1].Title)

	_, err = f.msgRepo.Create(as("user_a"), []*types.Message{{ChatID: b.ID, From: types.FromUser, Content: "hello"}})
	require.NoError(t, err)
	require.NoError(t, f.chats.DeleteChat(as("user_a"), b.ID))

	list, err = f.chats.ListChats(as("user_a"))
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = f.chats.ListMessages(as("user_a"), b.ID)
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}
