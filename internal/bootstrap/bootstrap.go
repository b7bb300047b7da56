// Package bootstrap assembles the application in phases: configuration
// validation, infrastructure, business services, HTTP, and finally the
// graceful run loop.
package bootstrap

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/services"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/vault"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                   *store.Store
	Vault                *vault.Vault
	MetricsRecorder      metrics.Recorder
	RateLimitRedisClient *redis.Client

	// OAuth plumbing
	OAuthRegistry *auth.Registry
	StateSigner   *auth.StateSigner

	// Services
	AuditService *services.AuditService
	TokenService *services.TokenService
	OAuthService *services.OAuthService
	SyncService  *services.SyncService

	// HTTP
	Handlers handlerSet
	Router   *gin.Engine
	Server   *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, vault, metrics, and Redis.
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = store.New(app.Config.DatabaseDriver, app.Config.DatabaseDSN)
	if err != nil {
		return err
	}
	log.Printf("Database ready (driver: %s)", app.Config.DatabaseDriver)

	app.Vault, err = vault.New(app.Config.EncryptionKey)
	if err != nil {
		return err
	}

	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)

	app.RateLimitRedisClient, err = initializeRateLimitRedisClient(app.Config)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up the OAuth registry and services.
func (app *Application) initializeBusinessLayer() error {
	app.OAuthRegistry = auth.NewRegistry(app.Config)
	logProviderStatus(app.OAuthRegistry)
	app.StateSigner = auth.NewStateSigner(app.Config.EncryptionKey)

	app.AuditService = services.NewAuditService(
		app.DB,
		app.Config.EnableAuditLogging,
		app.Config.AuditLogBufferSize,
	)

	app.TokenService = services.NewTokenService(
		app.DB,
		app.Vault,
		app.OAuthRegistry,
		app.AuditService,
		app.MetricsRecorder,
	)

	adapters, sheetsAdapter, err := initializeProviderAdapters(app.Config)
	if err != nil {
		return err
	}

	app.OAuthService = services.NewOAuthService(
		app.DB,
		app.Vault,
		app.OAuthRegistry,
		app.StateSigner,
		app.AuditService,
		adapters,
		app.Config.StatusCacheTTL,
	)

	app.SyncService = services.NewSyncService(
		app.DB,
		app.TokenService,
		app.AuditService,
		app.MetricsRecorder,
		adapters,
		sheetsAdapter,
		app.Config.SyncWindowPast,
		app.Config.SyncWindowFuture,
	)

	return nil
}

// initializeHTTPLayer sets up handlers, router, and server.
func (app *Application) initializeHTTPLayer() {
	app.Handlers = initializeHandlers(app)
	app.Router = setupRouter(app)
	app.Server = createHTTPServer(app.Config, app.Router)
}
