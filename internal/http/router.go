package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/meravakil/meravakil-backend/internal/http/handlers"
	httpMW "github.com/meravakil/meravakil-backend/internal/http/middleware"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	ServiceName    string
	AllowedOrigins []string
	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the client IP is always the TCP peer.
	TrustedProxies []string
	Limiter        httpMW.Limiter

	AuthMiddleware *httpMW.AuthMiddleware
	ChatHandler    *httpH.ChatHandler
	WebhookHandler *httpH.WebhookHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		if cfg.Log != nil {
			cfg.Log.Warn("Invalid trusted proxies, trusting none", "proxies", cfg.TrustedProxies, "error", err)
		}
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(httpMW.Recovery(cfg.Log))
	r.Use(httpMW.AttachTraceContext())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	r.Use(httpMW.RateLimit(cfg.Log, cfg.Limiter, cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Identity webhook (signed, no session)
		if cfg.WebhookHandler != nil {
			api.POST("/webhook", cfg.WebhookHandler.Receive)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.ChatHandler != nil {
			protected.POST("/chat", cfg.ChatHandler.Ask)

			protected.POST("/chats", cfg.ChatHandler.CreateChat)
			protected.GET("/chats", cfg.ChatHandler.ListChats)
			protected.PATCH("/chats/:chatId", cfg.ChatHandler.RenameChat)
			protected.PUT("/chats/:chatId/star", cfg.ChatHandler.StarChat)
			protected.DELETE("/chats/:chatId", cfg.ChatHandler.DeleteChat)
			protected.GET("/chats/:chatId/messages", cfg.ChatHandler.ListMessages)
		}
	}

	return r
}
