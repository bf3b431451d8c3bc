package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/ingestion"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/tokenizer"
	"github.com/meravakil/meravakil-backend/internal/prompts"
	"github.com/meravakil/meravakil-backend/internal/services"
)

type Services struct {
	Chat         services.ChatService
	Assistant    services.AssistantService
	Conversation services.ConversationService
	User         services.UserService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, ai AIClients, m *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	promptSet, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return Services{}, fmt.Errorf("load prompts: %w", err)
	}
	tok := tokenizer.Shared()
	if !tok.Exact() {
		log.Warn("Tokenizer encoding unavailable; using byte-length approximation")
	}

	chat := services.NewChatService(db, log, repos.Chat, repos.Message)
	assistant := services.NewAssistantService(log, ai.OpenAI, ai.VectorStore, promptSet, tok, m, services.AssistantConfig{
		TopK:          cfg.RAGTopK,
		MinScore:      cfg.RAGMinScore,
		TextField:     cfg.PineconeTextField,
		Namespace:     cfg.PineconeNamespace,
		ContextTokens: cfg.RAGContextTokens,
		Temperature:   float32(cfg.RAGTemperature),
	})
	return Services{
		Chat:         chat,
		Assistant:    assistant,
		Conversation: services.NewConversationService(db, log, chat, repos.Chat, repos.Message, assistant),
		User:         services.NewUserService(db, log, repos.User, repos.Chat),
	}, nil
}

func wireIngester(log *logger.Logger, cfg Config, ai AIClients, m *observability.Metrics) *ingestion.Ingester {
	chunker := ingestion.NewChunker(tokenizer.Shared(), cfg.IngestChunkTokens, cfg.IngestChunkOverlap)
	return ingestion.NewIngester(log, ai.OpenAI, ai.VectorStore, chunker, m, ingestion.Config{
		Namespace:   cfg.PineconeNamespace,
		TextField:   cfg.PineconeTextField,
		BatchSize:   cfg.IngestBatchSize,
		Concurrency: cfg.IngestConcurrency,
	})
}
