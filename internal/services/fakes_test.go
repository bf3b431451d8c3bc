package services

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/repos"
	"github.com/meravakil/meravakil-backend/internal/data/repos/testutil"
	"github.com/meravakil/meravakil-backend/internal/platform/ctxutil"
	"github.com/meravakil/meravakil-backend/internal/platform/dbctx"
	"github.com/meravakil/meravakil-backend/internal/platform/openai"
	"github.com/meravakil/meravakil-backend/internal/platform/pinecone"
)

type fakeAI struct {
	mu          sync.Mutex
	text        string
	embedErr    error
	completeErr error
	embedded    [][]string
	completions []openai.CompletionRequest
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded = append(f.embedded, inputs)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, float32(i)}
	}
	return out, nil
}

func (f *fakeAI) Complete(_ context.Context, req openai.CompletionRequest) (*openai.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, req)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &openai.Completion{Text: f.text, Model: "gpt-4o-mini"}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	matches  []pinecone.VectorMatch
	err      error
	topK     int
	upserted []pinecone.Vector
}

func (f *fakeStore) Upsert(_ context.Context, _ string, vectors []pinecone.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, vectors...)
	return f.err
}

func (f *fakeStore) QueryMatches(_ context.Context, _ string, _ []float32, topK int, _ map[string]any) ([]pinecone.VectorMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topK = topK
	return f.matches, f.err
}

func (f *fakeStore) DeleteIDs(context.Context, string, []string) error { return f.err }

func (f *fakeStore) ListIDs(context.Context, string, string) ([]string, error) { return nil, f.err }

type fixture struct {
	db       *gorm.DB
	chatRepo repos.ChatRepo
	msgRepo  repos.MessageRepo
	userRepo repos.UserRepo
	chats    ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		db:       db,
		chatRepo: repos.NewChatRepo(db, log),
		msgRepo:  repos.NewMessageRepo(db, log),
		userRepo: repos.NewUserRepo(db, log),
	}
	f.chats = NewChatService(db, log, f.chatRepo, f.msgRepo)
	return f
}

func as(userID string) dbctx.Context {
	ctx := context.Background()
	if userID != "" {
		ctx = ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: userID})
	}
	return dbctx.Context{Ctx: ctx}
}
