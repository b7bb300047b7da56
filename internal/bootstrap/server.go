package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/cache"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/services"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// startWithGracefulShutdown starts the server and its background jobs,
// then blocks until shutdown completes.
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addRedisClientShutdownJob(m, app.RateLimitRedisClient)
	addAuditServiceShutdownJob(m, app.AuditService)
	addAuditCleanupJob(m, app.Config, app.AuditService)
	addConnectedGaugeJob(m, app.Config, app.DB, app.MetricsRecorder)

	<-m.Done()
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		log.Println("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
			return err
		}
		log.Println("Redis connection closed")
		return nil
	})
}

// addAuditServiceShutdownJob flushes buffered audit events on shutdown.
func addAuditServiceShutdownJob(m *graceful.Manager, auditService *services.AuditService) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down integration audit...")
		auditService.Shutdown()
		return nil
	})
}

// addAuditCleanupJob adds the daily audit retention job.
func addAuditCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	auditService *services.AuditService,
) {
	if !cfg.EnableAuditLogging || cfg.AuditLogRetention <= 0 {
		return
	}

	runCleanup := func() {
		if deleted, err := auditService.Cleanup(cfg.AuditLogRetention); err != nil {
			log.Printf("Failed to cleanup old integration events: %v", err)
		} else if deleted > 0 {
			log.Printf("Cleaned up %d old integration events", deleted)
		}
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		runCleanup()
		for {
			select {
			case <-ticker.C:
				runCleanup()
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addConnectedGaugeJob periodically refreshes the connected-integrations
// gauge. Counts are cached for one interval so multiple instances don't
// hammer the database with the same query.
func addConnectedGaugeJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
) {
	if !cfg.MetricsEnabled || !cfg.MetricsGaugeUpdateEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.MetricsGaugeUpdateInterval)
		defer ticker.Stop()

		counts := cache.NewMemoryCache[map[models.Provider]int64]()
		defer counts.Close()

		update := func() {
			result, err := cache.GetWithFetch(ctx, counts, "connected_integrations",
				cfg.MetricsGaugeUpdateInterval,
				func(ctx context.Context, key string) (map[models.Provider]int64, error) {
					return db.CountConnectedIntegrations()
				})
			if err != nil {
				recorder.RecordDatabaseQueryError("count_connected_integrations")
				log.Printf("Failed to count connected integrations: %v", err)
				return
			}
			for _, p := range []models.Provider{models.ProviderMS365, models.ProviderGoogleCalendar, models.ProviderGoogleSheets} {
				recorder.SetConnectedIntegrations(string(p), int(result[p]))
			}
		}

		update()
		for {
			select {
			case <-ticker.C:
				update()
			case <-ctx.Done():
				return nil
			}
		}
	})
}
