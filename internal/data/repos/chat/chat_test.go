package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meravakil/meravakil-backend/internal/data/repos/testutil"
	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
)

func TestChatRepoListOrdersStarredFirst(t *testing.T) {
	db := testutil.DB(t)
	repo := NewChatRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	base := time.Now().UTC().Add(-time.Hour)
	mk := func(title string, starred bool, age time.Duration) *types.Chat {
		c, err := repo.Create(dbc, &types.Chat{
			UserID:    "user_a",
			Title:     title,
			Starred:   starred,
			CreatedAt: base.Add(-age),
			UpdatedAt: base.Add(-age),
		})
		if err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
		return c
	}
	old := mk("old", false, 3*time.Minute)
	starred := mk("starred", true, 5*time.Minute)
	recent := mk("recent", false, time.Minute)
	if _, err := repo.Create(dbc, &types.Chat{UserID: "user_b"}); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	got, err := repo.ListByUser(dbc, "user_a", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	want := []uuid.UUID{starred.ID, recent.ID, old.ID}
	if len(got) != len(want) {
		t.Fatalf("ListByUser: expected %d chats, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("ListByUser[%d]: expected %s (%s), got %s", i, want[i], []string{"starred", "recent", "old"}[i], got[i].Title)
		}
	}

	if err := repo.UpdateFields(dbc, old.ID, map[string]interface{}{"title": "renamed"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err = repo.ListByUser(dbc, "user_a", 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if got[1].ID != old.ID || got[1].Title != "renamed" {
		t.Fatalf("expected renamed chat to move up, got %+v", got[1])
	}
}

func TestChatRepoDeleteCascades(t *testing.T) {
	db := testutil.DB(t)
	chats := NewChatRepo(db, testutil.Logger(t))
	msgs := NewMessageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	keep, err := chats.Create(dbc, &types.Chat{UserID: "user_a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	drop, err := chats.Create(dbc, &types.Chat{UserID: "user_a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, c := range []*types.Chat{keep, drop} {
		if _, err := msgs.Create(dbc, []*types.Message{
			{ChatID: c.ID, From: types.FromUser, Content: "q"},
			{ChatID: c.ID, From: types.FromAssistant, Content: "a"},
		}); err != nil {
			t.Fatalf("Create messages: %v", err)
		}
	}

	if err := chats.Delete(dbc, drop.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := chats.GetByID(dbc, drop.ID); err != nil || got != nil {
		t.Fatalf("GetByID after delete: got=%+v err=%v", got, err)
	}
	var orphans int64
	if err := db.Model(&types.Message{}).Where("chat_id = ?", drop.ID).Count(&orphans).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected messages to be deleted with chat, found %d", orphans)
	}
	left, err := msgs.ListByChat(dbc, keep.ID, 0)
	if err != nil || len(left) != 2 {
		t.Fatalf("other chat messages: n=%d err=%v", len(left), err)
	}
}

func TestChatRepoDeleteByUser(t *testing.T) {
	db := testutil.DB(t)
	chats := NewChatRepo(db, testutil.Logger(t))
	msgs := NewMessageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	for _, owner := range []string{"user_a", "user_a", "user_b"} {
		c, err := chats.Create(dbc, &types.Chat{UserID: owner})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := msgs.Create(dbc, []*types.Message{{ChatID: c.ID, From: types.FromUser, Content: "hi"}}); err != nil {
			t.Fatalf("Create message: %v", err)
		}
	}

	n, err := chats.DeleteByUser(dbc, "user_a")
	if err != nil {
		t.Fatalf("DeleteByUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("DeleteByUser: expected 2 chats, got %d", n)
	}
	var total int64
	if err := db.Model(&types.Message{}).Count(&total).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected only user_b's message to remain, found %d", total)
	}
}

func TestChatRepoPostgres(t *testing.T) {
	db := testutil.PostgresDB(t)
	tx := testutil.Tx(t, db)
	repo := NewChatRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	c, err := repo.Create(dbc, &types.Chat{UserID: "user_pg_" + uuid.NewString()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(dbc, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, err := repo.GetByID(dbc, c.ID); err != nil || got != nil {
		t.Fatalf("GetByID after delete: got=%+v err=%v", got, err)
	}
}

func TestChatRepoTouchChecksOwnerAndExistence(t *testing.T) {
	db := testutil.DB(t)
	chats := NewChatRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	c, err := chats.Create(dbc, &types.Chat{UserID: "user_a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	at := time.Now().UTC().Add(time.Minute)

	ok, err := chats.Touch(dbc, c.ID, "user_a", at)
	if err != nil || !ok {
		t.Fatalf("Touch owner: ok=%v err=%v", ok, err)
	}
	got, err := chats.GetByID(dbc, c.ID)
	if err != nil || got.LastMessageAt == nil || !got.LastMessageAt.Equal(at) || !got.UpdatedAt.Equal(at) {
		t.Fatalf("timestamps not bumped: %+v err=%v", got, err)
	}

	if ok, err := chats.Touch(dbc, c.ID, "user_b", at); err != nil || ok {
		t.Fatalf("Touch foreign: ok=%v err=%v", ok, err)
	}
	if err := chats.Delete(dbc, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, err := chats.Touch(dbc, c.ID, "user_a", at); err != nil || ok {
		t.Fatalf("Touch deleted: ok=%v err=%v", ok, err)
	}
}

func TestMessageForeignKeyCascades(t *testing.T) {
	db := testutil.DB(t)
	chats := NewChatRepo(db, testutil.Logger(t))
	msgs := NewMessageRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := msgs.Create(dbc, []*types.Message{
		{ChatID: uuid.New(), From: types.FromUser, Content: "orphan"},
	}); err == nil {
		t.Fatalf("expected message for a missing chat to be rejected")
	}

	c, err := chats.Create(dbc, &types.Chat{UserID: "user_a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := msgs.Create(dbc, []*types.Message{{ChatID: c.ID, From: types.FromUser, Content: "q"}}); err != nil {
		t.Fatalf("Create messages: %v", err)
	}
	// bypass the repo so only the constraint removes the messages
	if err := db.Where("id = ?", c.ID).Delete(&types.Chat{}).Error; err != nil {
		t.Fatalf("raw delete: %v", err)
	}
	var n int64
	if err := db.Model(&types.Message{}).Where("chat_id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected cascade to remove messages, found %d", n)
	}
}
