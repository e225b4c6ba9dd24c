// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StorageBackend represents the storage implementation type.
type StorageBackend string

const (
	// StorageMemory keeps analyses in process memory.
	StorageMemory StorageBackend = "memory"
	// StoragePostgres uses PostgreSQL.
	StoragePostgres StorageBackend = "postgres"
	// StorageSQLite uses a local SQLite file.
	StorageSQLite StorageBackend = "sqlite"
)

// Base contains the configuration of the perftrace service.
type Base struct {
	// Service identification
	ServiceName string
	Environment string // development, staging, production
	Version     string

	// Server
	GRPCPort int
	HTTPPort int

	// Storage backend
	StorageBackend StorageBackend

	// Database (used when StorageBackend is "postgres")
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// SQLite database file (used when StorageBackend is "sqlite")
	SQLitePath string

	// Redis report cache; empty disables caching
	RedisURL string
	CacheTTL time.Duration

	// S3 trace sources and export sinks
	S3Region   string
	S3Endpoint string

	// Per-client limit on analysis submissions over HTTP; zero disables it
	RateLimit float64
	RateBurst int

	// Observability
	OTLPEndpoint string
	LogLevel     string
	LogFormat    string // json, text

	// Tracing
	TracingEnabled  bool
	TracingSampling float64
}

// Load loads base configuration from environment variables.
func Load(serviceName string) (*Base, error) {
	cfg := &Base{
		ServiceName: serviceName,
		Environment: getEnv("PERFTRACE_ENV", "development"),
		Version:     getEnv("PERFTRACE_VERSION", "dev"),

		GRPCPort: getEnvInt("PERFTRACE_GRPC_PORT", 9000),
		HTTPPort: getEnvInt("PERFTRACE_HTTP_PORT", 8080),

		StorageBackend: parseStorageBackend(getEnv("PERFTRACE_STORAGE_BACKEND", "memory")),

		DBHost:     getEnv("PERFTRACE_DB_HOST", "localhost"),
		DBPort:     getEnvInt("PERFTRACE_DB_PORT", 5432),
		DBUser:     getEnv("PERFTRACE_DB_USER", "perftrace"),
		DBPassword: getEnv("PERFTRACE_DB_PASSWORD", ""),
		DBName:     getEnv("PERFTRACE_DB_NAME", "perftrace"),
		DBSSLMode:  getEnv("PERFTRACE_DB_SSLMODE", "disable"),

		SQLitePath: getEnv("PERFTRACE_SQLITE_PATH", "perftrace.db"),

		RedisURL: getEnv("PERFTRACE_REDIS_URL", ""),
		CacheTTL: getEnvDuration("PERFTRACE_CACHE_TTL", time.Hour),

		S3Region:   getEnv("PERFTRACE_S3_REGION", ""),
		S3Endpoint: getEnv("PERFTRACE_S3_ENDPOINT", ""),

		RateLimit: getEnvFloat("PERFTRACE_RATE_LIMIT", 0),
		RateBurst: getEnvInt("PERFTRACE_RATE_BURST", 10),

		OTLPEndpoint: getEnv("PERFTRACE_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getEnv("PERFTRACE_LOG_LEVEL", "info"),
		LogFormat:    getEnv("PERFTRACE_LOG_FORMAT", "json"),

		TracingEnabled:  getEnvBool("PERFTRACE_TRACING_ENABLED", false),
		TracingSampling: getEnvFloat("PERFTRACE_TRACING_SAMPLING", 1.0),
	}

	if cfg.GRPCPort == cfg.HTTPPort {
		return nil, fmt.Errorf("gRPC and HTTP ports must differ: both are %d", cfg.GRPCPort)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative: %v", cfg.RateLimit)
	}
	if cfg.TracingSampling < 0 || cfg.TracingSampling > 1 {
		return nil, fmt.Errorf("tracing sampling must be within [0, 1]: %v", cfg.TracingSampling)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string.
func (c *Base) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// IsDevelopment returns true if running in development mode.
func (c *Base) IsDevelopment() bool {
	return c.Environment == "development"
}

// UseMemoryStorage returns true if using in-memory storage.
func (c *Base) UseMemoryStorage() bool {
	return c.StorageBackend == StorageMemory
}

// UseSQLStorage returns true if analyses are kept in PostgreSQL or SQLite.
func (c *Base) UseSQLStorage() bool {
	return c.StorageBackend == StoragePostgres || c.StorageBackend == StorageSQLite
}

// UseCache returns true if a Redis report cache is configured.
func (c *Base) UseCache() bool {
	return c.RedisURL != ""
}

func parseStorageBackend(s string) StorageBackend {
	switch s {
	case "postgres", "postgresql", "pg":
		return StoragePostgres
	case "sqlite", "sqlite3":
		return StorageSQLite
	default:
		return StorageMemory
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
