// Package config loads RingForge's runtime configuration from the
// environment, using os.Getenv-with-defaults parsed once at boot into a
// typed struct.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-driven setting the core needs at boot.
type Config struct {
	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	// NATS (optional cross-instance relay)
	NATSURL string

	// Listen addresses
	GatewayAddr      string
	ControlPlaneAddr string

	// Tunables
	LogLevel               string
	LogPretty              bool
	AuthTimeout            time.Duration
	HeartbeatInterval      time.Duration
	HeartbeatTimeout       time.Duration
	AuthRateLimitAttempts  int
	AuthRateLimitWindow    time.Duration
	MessageRateLimitPerSec int
	AdminRateLimitPerSec   float64
	AdminRateLimitBurst    int
	PresenceSweepInterval  time.Duration
	MemoryTTLSweepInterval time.Duration
	RetentionSweepInterval time.Duration
	OfflineDMQueueLimit    int
	OfflineDMQueueTTL      time.Duration
	TaskClaimGrace         time.Duration
	IdempotencyTTL         time.Duration
	BootstrapAdminKey      string

	// Secrets for HMAC/JWT-signed tokens. Neither is a password hash; both
	// gate short-lived, narrowly-scoped tokens (reconnect challenges,
	// presigned blob URLs) and are rotateable without touching stored data.
	ChallengeSecret   string
	BlobSignerSecret  string
	BlobSignerBaseURL string
	BlobSignerTTL     time.Duration
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Load reads configuration from the environment, applying the defaults
// named throughout.
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "ringforge"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "ringforge"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),

		NATSURL: os.Getenv("NATS_URL"),

		GatewayAddr:      getEnv("GATEWAY_ADDR", ":7700"),
		ControlPlaneAddr: getEnv("CONTROLPLANE_ADDR", ":7701"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		AuthTimeout:            getEnvDuration("AUTH_TIMEOUT", 10*time.Second),
		HeartbeatInterval:      getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		HeartbeatTimeout:       getEnvDuration("HEARTBEAT_TIMEOUT", 90*time.Second),
		AuthRateLimitAttempts:  getEnvInt("AUTH_RATE_LIMIT_ATTEMPTS", 5),
		AuthRateLimitWindow:    getEnvDuration("AUTH_RATE_LIMIT_WINDOW", 60*time.Second),
		MessageRateLimitPerSec: getEnvInt("MESSAGE_RATE_LIMIT_PER_SEC", 100),
		AdminRateLimitPerSec:   getEnvFloat("ADMIN_RATE_LIMIT_PER_SEC", 10),
		AdminRateLimitBurst:    getEnvInt("ADMIN_RATE_LIMIT_BURST", 20),
		PresenceSweepInterval:  getEnvDuration("PRESENCE_SWEEP_INTERVAL", 15*time.Second),
		MemoryTTLSweepInterval: getEnvDuration("MEMORY_TTL_SWEEP_INTERVAL", 15*time.Second),
		RetentionSweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", 1*time.Hour),
		OfflineDMQueueLimit:    getEnvInt("OFFLINE_DM_QUEUE_LIMIT", 100),
		OfflineDMQueueTTL:      getEnvDuration("OFFLINE_DM_QUEUE_TTL", 5*time.Minute),
		TaskClaimGrace:         getEnvDuration("TASK_CLAIM_GRACE", 10*time.Second),
		IdempotencyTTL:         getEnvDuration("IDEMPOTENCY_TTL", 5*time.Minute),
		BootstrapAdminKey:      os.Getenv("BOOTSTRAP_ADMIN_KEY"),

		ChallengeSecret:   getEnv("CHALLENGE_SECRET", "dev-insecure-challenge-secret-change-me"),
		BlobSignerSecret:  getEnv("BLOB_SIGNER_SECRET", "dev-insecure-blob-secret-change-me"),
		BlobSignerBaseURL: getEnv("BLOB_SIGNER_BASE_URL", "https://blobs.ringforge.invalid"),
		BlobSignerTTL:     getEnvDuration("BLOB_SIGNER_TTL", 15*time.Minute),
	}
}

// RetentionForPlan returns the event-log retention window for a tenant plan.
func RetentionForPlan(plan string) time.Duration {
	switch plan {
	case "pro":
		return 7 * 24 * time.Hour
	case "scale":
		return 30 * 24 * time.Hour
	case "enterprise":
		return 90 * 24 * time.Hour
	default: // free
		return 24 * time.Hour
	}
}

// QuotaTableForPlan returns the default hard quota limits for a tenant plan.
type QuotaLimits struct {
	MaxConcurrentAgents int64
	MaxMessagesPerDay    int64
	MaxMemoryEntries     int64
	MaxFleets            int64
	MaxStorageBytes      int64
}

func QuotaTableForPlan(plan string) QuotaLimits {
	switch plan {
	case "pro":
		return QuotaLimits{MaxConcurrentAgents: 100, MaxMessagesPerDay: 500_000, MaxMemoryEntries: 50_000, MaxFleets: 20, MaxStorageBytes: 10 << 30}
	case "scale":
		return QuotaLimits{MaxConcurrentAgents: 1000, MaxMessagesPerDay: 5_000_000, MaxMemoryEntries: 500_000, MaxFleets: 200, MaxStorageBytes: 100 << 30}
	case "enterprise":
		return QuotaLimits{MaxConcurrentAgents: 10000, MaxMessagesPerDay: 50_000_000, MaxMemoryEntries: 5_000_000, MaxFleets: 2000, MaxStorageBytes: 1 << 40}
	default: // free
		return QuotaLimits{MaxConcurrentAgents: 10, MaxMessagesPerDay: 50_000, MaxMemoryEntries: 1_000, MaxFleets: 2, MaxStorageBytes: 1 << 30}
	}
}
