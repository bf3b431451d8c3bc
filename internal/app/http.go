package app

import (
	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/http"
	httpH "github.com/meravakil/meravakil-backend/internal/http/handlers"
	httpMW "github.com/meravakil/meravakil-backend/internal/http/middleware"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type Middleware struct {
	Auth    *httpMW.AuthMiddleware
	Limiter httpMW.Limiter
}

type Handlers struct {
	Health  *httpH.HealthHandler
	Chat    *httpH.ChatHandler
	Webhook *httpH.WebhookHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services, clients Clients, m *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(db),
		Chat:    httpH.NewChatHandler(log, services.Chat, services.Conversation),
		Webhook: httpH.NewWebhookHandler(log, clients.Webhooks, services.User, m),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, clients Clients) Middleware {
	log.Info("Wiring middleware...")
	limiter := httpMW.NewMemoryLimiter(cfg.RateLimit)
	if clients.Redis != nil {
		limiter = httpMW.NewRedisLimiter(clients.Redis, cfg.RateLimit)
	}
	log.Info("Rate limiter ready", "backend", limiter.Backend())
	return Middleware{
		Auth:    httpMW.NewAuthMiddleware(log, clients.Verifier),
		Limiter: limiter,
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, m *observability.Metrics) *http.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return http.NewServer(http.RouterConfig{
		Log:            log,
		Metrics:        m,
		ServiceName:    serviceName,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Limiter:        middleware.Limiter,
		AuthMiddleware: middleware.Auth,
		ChatHandler:    handlers.Chat,
		WebhookHandler: handlers.Webhook,
		HealthHandler:  handlers.Health,
	})
}
