package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(t *testing.T, limiter gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(limiter)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return router
}

func doRequest(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewMemoryRateLimiter(t *testing.T) {
	limiter, err := NewMemoryRateLimiter(5)
	require.NoError(t, err)
	router := newLimitedRouter(t, limiter)

	for i := 0; i < 5; i++ {
		w := doRequest(router, "192.168.1.100")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := doRequest(router, "192.168.1.100")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 2,
		StoreType:         RateLimitStoreMemory,
	})
	require.NoError(t, err)
	router := newLimitedRouter(t, limiter)

	for _, ip := range []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"} {
		for i := 0; i < 2; i++ {
			w := doRequest(router, ip)
			assert.Equal(t, http.StatusOK, w.Code, "Request %d from IP %s should succeed", i+1, ip)
		}

		w := doRequest(router, ip)
		assert.Equal(t, http.StatusTooManyRequests, w.Code, "Third request from IP %s should be rate limited", ip)
	}
}

func TestRateLimiter_ErrorResponse(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 1,
		StoreType:         RateLimitStoreMemory,
	})
	require.NoError(t, err)
	router := newLimitedRouter(t, limiter)

	w := doRequest(router, "192.168.1.50")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, "192.168.1.50")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
	assert.Contains(t, w.Body.String(), "Too many requests")
}

func TestNewRedisRateLimiter_InvalidAddress(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter, err := NewRedisRateLimiter(10, "invalid-host:9999", "", 0)
	assert.Error(t, err)
	assert.Nil(t, limiter)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

// TestNewRedisRateLimiter_Success requires a Redis server on localhost:6379
// and skips itself when none is reachable.
func TestNewRedisRateLimiter_Success(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	limiter, err := NewRedisRateLimiter(5, "localhost:6379", "", 0)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
		return
	}
	router := newLimitedRouter(t, limiter)

	testIP := "192.168.99." + time.Now().Format("150405")
	for i := 0; i < 5; i++ {
		w := doRequest(router, testIP)
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := doRequest(router, testIP)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

// TestSharedRedisClient verifies multiple limiters can share one client.
func TestSharedRedisClient(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sharedClient, err := CreateRedisClient("localhost:6379", "", 0)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
		return
	}
	defer sharedClient.Close()

	syncLimiter, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 5,
		StoreType:         RateLimitStoreRedis,
		RedisClient:       sharedClient,
		CleanupInterval:   1 * time.Minute,
	})
	require.NoError(t, err)

	connectLimiter, err := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 10,
		StoreType:         RateLimitStoreRedis,
		RedisClient:       sharedClient,
		CleanupInterval:   1 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, syncLimiter)
	require.NotNil(t, connectLimiter)
}

func TestNoopMiddleware(t *testing.T) {
	router := newLimitedRouter(t, NoopMiddleware())

	for i := 0; i < 50; i++ {
		w := doRequest(router, "192.168.1.9")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
