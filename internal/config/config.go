// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// PartialContentPolicy decides what happens to accumulated content when a
// generation fails mid-stream.
type PartialContentPolicy string

const (
	// PartialPersist persists the accumulated content as a new version.
	PartialPersist PartialContentPolicy = "persist"
	// PartialDiscard drops the accumulated content entirely.
	PartialDiscard PartialContentPolicy = "discard"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Postgres settings
	DatabaseURL string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// Generation settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultProvider string
	PartialContent  PartialContentPolicy

	// Streaming settings
	ResumptionWindow   time.Duration
	ReplayBufferCap    int
	ResumableTransport bool

	// Client version cache
	CacheTTL      time.Duration
	CacheCapacity int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Postgres
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/artifacts?sslmode=disable"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// Generation
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", "anthropic"),
		PartialContent:  partialPolicy(getEnv("PARTIAL_CONTENT_POLICY", "persist")),

		// Streaming
		ResumptionWindow:   getDurationEnv("RESUMPTION_WINDOW", 15*time.Second),
		ReplayBufferCap:    getIntEnv("REPLAY_BUFFER_CAP", 4096),
		ResumableTransport: getBoolEnv("RESUMABLE_TRANSPORT", true),

		// Client version cache
		CacheTTL:      getDurationEnv("VERSION_CACHE_TTL", 5*time.Minute),
		CacheCapacity: getIntEnv("VERSION_CACHE_CAPACITY", 512),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func partialPolicy(value string) PartialContentPolicy {
	if value == string(PartialDiscard) {
		return PartialDiscard
	}
	return PartialPersist
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
