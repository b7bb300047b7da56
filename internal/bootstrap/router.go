package bootstrap

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/middleware"
)

// setupRouter configures the Gin router with all routes and middleware.
func setupRouter(app *Application) *gin.Engine {
	cfg := app.Config
	setupGinMode(cfg)

	r := gin.New()
	r.Use(metrics.HTTPMetricsMiddleware(app.MetricsRecorder))
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", app.Handlers.health.Health)
	setupMetricsEndpoint(r, cfg)

	rateLimiters := setupRateLimiting(cfg, app.RateLimitRedisClient)
	setupIntegrationRoutes(r, app.Handlers, rateLimiters)

	log.Printf("Integration API starting on %s", cfg.ServerAddr)
	log.Printf("OAuth callback base: %s/oauth/callback/:provider", cfg.BaseURL)
	return r
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint.
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupIntegrationRoutes wires the integration API.
func setupIntegrationRoutes(r *gin.Engine, h handlerSet, rateLimiters rateLimitMiddlewares) {
	r.GET("/oauth/callback/:provider", h.integration.Callback)

	group := r.Group("/integrations/:provider/:unit")
	{
		group.GET("/connect", rateLimiters.connect, h.integration.Connect)
		group.GET("/status", h.integration.Status)
		group.DELETE("", h.integration.Disconnect)

		group.GET("/events", h.events.ListEvents)
		group.POST("/events", h.events.CreateEvent)
		group.PATCH("/events/:id", h.events.UpdateEvent)
		group.DELETE("/events/:id", h.events.CancelEvent)

		group.GET("/availability", h.events.Availability)
		group.POST("/sync", rateLimiters.sync, h.events.Sync)
		group.GET("/sync-logs", h.events.SyncLogs)
		group.POST("/sheets/rows", h.events.AppendRow)
	}
}

// setupGinMode sets Gin mode based on environment configuration.
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
		return
	}
	gin.SetMode(gin.DebugMode)
}
