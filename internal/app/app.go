package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/db"
	"github.com/meravakil/meravakil-backend/internal/http"
	"github.com/meravakil/meravakil-backend/internal/ingestion"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *http.Server

	dbs           *db.Service
	otelShutdown  func(context.Context) error
	cancelWorkers context.CancelFunc
}

// New builds the full serving graph. The caller owns Close.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)
	metrics := observability.New()

	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbs.Migrate(); err != nil {
		_ = dbs.Close()
		return nil, fmt.Errorf("database migrate: %w", err)
	}
	theDB := dbs.DB()
	metrics.RegisterDB(log, theDB, "meravakil")

	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients.AIClients, metrics)
	if err != nil {
		clients.Close()
		_ = dbs.Close()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset, clients, metrics)
	middleware := wireMiddleware(log, cfg, clients)
	server := wireServer(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Metrics:      metrics,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       server,
		dbs:          dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background collectors.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancelWorkers != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancelWorkers = cancel
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis, 15*time.Second)
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx, a.Cfg.HTTPAddr, a.Cfg.ShutdownTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancelWorkers != nil {
		a.cancelWorkers()
		a.cancelWorkers = nil
	}
	a.Clients.Close()
	if a.dbs != nil {
		if err := a.dbs.Close(); err != nil {
			a.Log.Warn("Database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Tracer shutdown failed", "error", err)
		}
		cancel()
	}
	a.Log.Sync()
}

// Migrate opens the database, applies the schema and closes it again.
func Migrate(log *logger.Logger, cfg Config) error {
	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() { _ = dbs.Close() }()
	return dbs.Migrate()
}

// NewIngester wires only what corpus ingestion needs: OpenAI and Pinecone.
func NewIngester(ctx context.Context, log *logger.Logger, cfg Config) (*ingestion.Ingester, error) {
	metrics := observability.New()
	ai, err := wireAIClients(ctx, log, cfg, metrics)
	if err != nil {
		return nil, err
	}
	return wireIngester(log, cfg, ai, metrics), nil
}
