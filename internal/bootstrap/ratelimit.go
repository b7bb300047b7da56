package bootstrap

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/middleware"
)

// rateLimitMiddlewares holds the per-endpoint rate limiters.
type rateLimitMiddlewares struct {
	sync    gin.HandlerFunc
	connect gin.HandlerFunc
}

// initializeRateLimitRedisClient opens the shared Redis connection for
// rate limiting, or returns nil when the memory store is in use.
func initializeRateLimitRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.EnableRateLimit || cfg.RateLimitStore != config.RateLimitStoreRedis {
		return nil, nil
	}
	return middleware.CreateRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

// setupRateLimiting configures rate limiting middlewares based on
// configuration. A nil redisClient means the memory store.
func setupRateLimiting(cfg *config.Config, redisClient *redis.Client) rateLimitMiddlewares {
	if !cfg.EnableRateLimit {
		return rateLimitMiddlewares{
			sync:    middleware.NoopMiddleware(),
			connect: middleware.NoopMiddleware(),
		}
	}

	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	createLimiter := func(requestsPerMinute int, endpoint string) gin.HandlerFunc {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: requestsPerMinute,
			StoreType:         middleware.RateLimitStoreType(cfg.RateLimitStore),
			RedisClient:       redisClient,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to create rate limiter for %s: %v", endpoint, err)
		}
		return limiter
	}

	return rateLimitMiddlewares{
		sync:    createLimiter(cfg.SyncRateLimit, "sync"),
		connect: createLimiter(cfg.ConnectRateLimit, "connect"),
	}
}
