package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit store type constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// minEncryptionKeyLength is the minimum accepted length for the
// integration encryption key. Shorter keys are rejected at startup.
const minEncryptionKeyLength = 16

// ProviderCredentials holds the OAuth app registration for one provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Enabled reports whether the provider has a complete OAuth app registration.
func (p ProviderCredentials) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.RedirectURI != ""
}

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Credential vault. EncryptionKey has NO default: startup fails
	// without it rather than falling back to a known key.
	EncryptionKey string

	// Per-provider OAuth app registrations
	MS365          ProviderCredentials
	GoogleCalendar ProviderCredentials
	GoogleSheets   ProviderCredentials

	// Outbound provider calls
	ProviderTimeout time.Duration

	// Calendar sync window
	SyncWindowPast   time.Duration
	SyncWindowFuture time.Duration

	// Metrics
	MetricsEnabled             bool
	MetricsToken               string
	MetricsGaugeUpdateEnabled  bool
	MetricsGaugeUpdateInterval time.Duration

	// Inbound rate limiting
	EnableRateLimit          bool
	RateLimitStore           string // "memory" or "redis"
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	SyncRateLimit            int // requests per minute per IP
	ConnectRateLimit         int
	RateLimitCleanupInterval time.Duration

	// Integration audit trail
	EnableAuditLogging bool
	AuditLogBufferSize int
	AuditLogRetention  time.Duration

	// Status endpoint cache
	StatusCacheTTL time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "crm.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction: getEnv("ENVIRONMENT", "development") == "production",

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		EncryptionKey: os.Getenv("INTEGRATION_ENCRYPTION_KEY"),

		MS365: ProviderCredentials{
			ClientID:     getEnv("MS365_CLIENT_ID", ""),
			ClientSecret: getEnv("MS365_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("MS365_REDIRECT_URI", ""),
		},
		GoogleCalendar: ProviderCredentials{
			ClientID:     getEnv("GOOGLE_CALENDAR_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CALENDAR_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_CALENDAR_REDIRECT_URI", ""),
		},
		GoogleSheets: ProviderCredentials{
			ClientID:     getEnv("GOOGLE_SHEETS_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_SHEETS_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_SHEETS_REDIRECT_URI", ""),
		},

		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 9*time.Second),

		SyncWindowPast:   getEnvDuration("SYNC_WINDOW_PAST", 720*time.Hour),    // 30 days
		SyncWindowFuture: getEnvDuration("SYNC_WINDOW_FUTURE", 2160*time.Hour), // 90 days

		MetricsEnabled:             getEnvBool("METRICS_ENABLED", false),
		MetricsToken:               getEnv("METRICS_TOKEN", ""),
		MetricsGaugeUpdateEnabled:  getEnvBool("METRICS_GAUGE_UPDATE_ENABLED", true),
		MetricsGaugeUpdateInterval: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", time.Minute),

		EnableRateLimit:          getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisDB:                  getEnvInt("REDIS_DB", 0),
		SyncRateLimit:            getEnvInt("SYNC_RATE_LIMIT", 10),
		ConnectRateLimit:         getEnvInt("CONNECT_RATE_LIMIT", 20),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 10*time.Minute),

		EnableAuditLogging: getEnvBool("ENABLE_AUDIT_LOGGING", true),
		AuditLogBufferSize: getEnvInt("AUDIT_LOG_BUFFER_SIZE", 1000),
		AuditLogRetention:  getEnvDuration("AUDIT_LOG_RETENTION", 90*24*time.Hour),

		StatusCacheTTL: getEnvDuration("STATUS_CACHE_TTL", 30*time.Second),
	}
}

// Validate checks configuration consistency. A missing or short encryption
// key is a hard startup failure: tokens must never be stored under a
// default key.
func (c *Config) Validate() error {
	if c.EncryptionKey == "" {
		return errors.New("INTEGRATION_ENCRYPTION_KEY is required")
	}
	if len(c.EncryptionKey) < minEncryptionKeyLength {
		return fmt.Errorf(
			"INTEGRATION_ENCRYPTION_KEY must be at least %d bytes, got %d",
			minEncryptionKeyLength, len(c.EncryptionKey),
		)
	}

	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}

	switch c.RateLimitStore {
	case RateLimitStoreMemory, RateLimitStoreRedis:
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORE value: %q (must be: memory, redis)", c.RateLimitStore)
	}
	if c.EnableRateLimit && c.RateLimitStore == RateLimitStoreRedis && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
	}

	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	if c.SyncWindowPast <= 0 || c.SyncWindowFuture <= 0 {
		return errors.New("sync window durations must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
