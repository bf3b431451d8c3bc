package app

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/meravakil/meravakil-backend/internal/data/db"
	"github.com/meravakil/meravakil-backend/internal/http/middleware"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/envutil"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

const serviceName = "meravakil-backend"

type Config struct {
	Environment string
	Version     string
	LogMode     string

	HTTPAddr        string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TrustedProxies  []string

	DB db.Config

	ClerkIssuer            string
	ClerkJWKSURL           string
	ClerkAuthorizedParties []string
	ClerkWebhookSecret     string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIEmbedModel string
	OpenAITimeout    time.Duration
	OpenAIMaxRetries int

	PineconeAPIKey     string
	PineconeIndexName  string
	PineconeIndexHost  string
	PineconeNamespace  string
	PineconeTextField  string
	PineconeMaxRetries int

	RAGTopK          int
	RAGMinScore      float64
	RAGContextTokens int
	RAGTemperature   float64
	PromptsFile      string

	IngestChunkTokens  int
	IngestChunkOverlap int
	IngestBatchSize    int
	IngestConcurrency  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimit     middleware.RateLimitConfig

	Otel observability.OtelConfig
}

// LoadDotEnv loads .env (or the given files) into the process environment.
// Variables already set win. A missing default .env is not an error.
func LoadDotEnv(log *logger.Logger, files ...string) {
	if len(files) == 0 {
		if err := godotenv.Load(); err == nil && log != nil {
			log.Info("Loaded .env")
		}
		return
	}
	if err := godotenv.Load(files...); err != nil && log != nil {
		log.Warn("Could not load env file", "files", strings.Join(files, ","), "error", err)
	}
}

func LoadConfig() Config {
	env := envutil.String("APP_ENV", "development")
	version := envutil.String("APP_VERSION", "dev")
	rl := middleware.DefaultRateLimitConfig()

	cfg := Config{
		Environment: env,
		Version:     version,
		LogMode:     envutil.String("LOG_MODE", "development"),

		HTTPAddr:        ":" + envutil.String("PORT", "8080"),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		AllowedOrigins:  envutil.List("CORS_ALLOWED_ORIGINS", middleware.DefaultAllowedOrigins),
		TrustedProxies:  envutil.List("TRUSTED_PROXIES", nil),

		DB: db.Config{
			Driver:          envutil.String("DB_DRIVER", "postgres"),
			DSN:             envutil.String("DATABASE_URL", ""),
			Host:            envutil.String("POSTGRES_HOST", "localhost"),
			Port:            envutil.String("POSTGRES_PORT", "5432"),
			User:            envutil.String("POSTGRES_USER", "postgres"),
			Password:        envutil.String("POSTGRES_PASSWORD", ""),
			Name:            envutil.String("POSTGRES_NAME", "meravakil"),
			SSLMode:         envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath:      envutil.String("SQLITE_PATH", "meravakil.db"),
			MaxOpenConns:    envutil.Int("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envutil.Int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envutil.Duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},

		ClerkIssuer:            envutil.String("CLERK_ISSUER", ""),
		ClerkJWKSURL:           envutil.String("CLERK_JWKS_URL", ""),
		ClerkAuthorizedParties: envutil.List("CLERK_AUTHORIZED_PARTIES", nil),
		ClerkWebhookSecret:     envutil.String("CLERK_WEBHOOK_SECRET", ""),

		OpenAIAPIKey:     envutil.String("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    envutil.String("OPENAI_BASE_URL", ""),
		OpenAIChatModel:  envutil.String("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAITimeout:    envutil.Duration("OPENAI_TIMEOUT", 60*time.Second),
		OpenAIMaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 2),

		PineconeAPIKey:     envutil.String("PINECONE_API_KEY", ""),
		PineconeIndexName:  envutil.String("PINECONE_INDEX_NAME", ""),
		PineconeIndexHost:  envutil.String("PINECONE_INDEX_HOST", ""),
		PineconeNamespace:  envutil.String("PINECONE_NAMESPACE", ""),
		PineconeTextField:  envutil.String("PINECONE_TEXT_FIELD", "text"),
		PineconeMaxRetries: envutil.Int("PINECONE_MAX_RETRIES", 3),

		RAGTopK:          envutil.Int("RAG_TOP_K", 5),
		RAGMinScore:      envutil.Float("RAG_MIN_SCORE", 0),
		RAGContextTokens: envutil.Int("RAG_CONTEXT_TOKENS", 3000),
		RAGTemperature:   envutil.Float("RAG_TEMPERATURE", 0),
		PromptsFile:      envutil.String("PROMPTS_FILE", ""),

		IngestChunkTokens:  envutil.Int("INGEST_CHUNK_TOKENS", 500),
		IngestChunkOverlap: envutil.Int("INGEST_CHUNK_OVERLAP", 50),
		IngestBatchSize:    envutil.Int("INGEST_BATCH_SIZE", 64),
		IngestConcurrency:  envutil.Int("INGEST_CONCURRENCY", 4),

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),
		RateLimit: middleware.RateLimitConfig{
			RPS:     envutil.Float("RATE_LIMIT_RPS", rl.RPS),
			Burst:   envutil.Int("RATE_LIMIT_BURST", rl.Burst),
			Window:  envutil.Duration("RATE_LIMIT_WINDOW", rl.Window),
			Limit:   envutil.Int("RATE_LIMIT_PER_WINDOW", rl.Limit),
			IdleTTL: rl.IdleTTL,
		},

		Otel: observability.OtelConfigFromEnv(serviceName, env, version),
	}
	return cfg
}
