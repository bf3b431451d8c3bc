package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/identity"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/openai"
	"github.com/meravakil/meravakil-backend/internal/platform/pinecone"
	"github.com/meravakil/meravakil-backend/internal/platform/resilience"
)

// AIClients are the outbound dependencies shared by serving and ingestion.
type AIClients struct {
	OpenAI      openai.Client
	VectorStore pinecone.VectorStore
}

type Clients struct {
	AIClients
	Redis    redis.UniversalClient
	Verifier identity.Verifier
	Webhooks identity.WebhookVerifier
}

func breakerConfig(m *observability.Metrics) resilience.BreakerConfig {
	bc := resilience.DefaultBreakerConfig()
	bc.OnStateChange = func(name string, to gobreaker.State) {
		m.SetBreakerState(name, int(to))
	}
	return bc
}

func wireAIClients(ctx context.Context, log *logger.Logger, cfg Config, m *observability.Metrics) (AIClients, error) {
	log.Info("Wiring AI clients...")
	ai, err := openai.NewClient(log, openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		ChatModel:  cfg.OpenAIChatModel,
		EmbedModel: cfg.OpenAIEmbedModel,
		Timeout:    cfg.OpenAITimeout,
		MaxRetries: cfg.OpenAIMaxRetries,
		Breaker:    breakerConfig(m),
	})
	if err != nil {
		return AIClients{}, fmt.Errorf("init openai client: %w", err)
	}
	pc, err := pinecone.New(log, pinecone.Config{
		APIKey:     cfg.PineconeAPIKey,
		MaxRetries: cfg.PineconeMaxRetries,
	})
	if err != nil {
		return AIClients{}, fmt.Errorf("init pinecone client: %w", err)
	}
	store, err := pinecone.NewVectorStore(ctx, log, pc, pinecone.StoreConfig{
		IndexName: cfg.PineconeIndexName,
		IndexHost: cfg.PineconeIndexHost,
		Breaker:   breakerConfig(m),
	})
	if err != nil {
		return AIClients{}, fmt.Errorf("init pinecone vector store: %w", err)
	}
	return AIClients{
		OpenAI:      ai,
		VectorStore: instrumentVectorStore("pinecone", store, m),
	}, nil
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, m *observability.Metrics) (Clients, error) {
	ai, err := wireAIClients(ctx, log, cfg, m)
	if err != nil {
		return Clients{}, err
	}

	log.Info("Wiring identity clients...")
	verifier, err := identity.NewVerifier(identity.VerifierConfig{
		Issuer:            cfg.ClerkIssuer,
		JWKSURL:           cfg.ClerkJWKSURL,
		AuthorizedParties: cfg.ClerkAuthorizedParties,
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init session verifier: %w", err)
	}
	webhooks, err := identity.NewWebhookVerifier(cfg.ClerkWebhookSecret)
	if err != nil {
		return Clients{}, fmt.Errorf("init webhook verifier: %w", err)
	}

	var rdb redis.UniversalClient
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
	}

	return Clients{
		AIClients: ai,
		Redis:     rdb,
		Verifier:  verifier,
		Webhooks:  webhooks,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
