package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"live-voting/internal/domain"
)

// Storage backends selectable with STORAGE_BACKEND
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	Environment    string

	StorageBackend string
	DatabaseURL    string
	SQLitePath     string
	RedisURL       string

	IdentityDimensions []domain.Dimension
	IdentitySecret     string
	HeartbeatWindow    time.Duration
	TimestampTolerance time.Duration

	AuthJWTSecret string
	AuthJWTIssuer string
	AdminKey      string
	TrustProxy    bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dims, err := domain.ParseDimensions(getEnv("IDENTITY_DIMENSIONS", "composite,network,fingerprint,account"))
	if err != nil {
		return nil, fmt.Errorf("IDENTITY_DIMENSIONS: %w", err)
	}
	heartbeat, err := getDurationEnv("HEARTBEAT_WINDOW", domain.DefaultHeartbeatWindow)
	if err != nil {
		return nil, err
	}
	tolerance, err := getDurationEnv("TIMESTAMP_TOLERANCE", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		AllowedOrigins:     parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
		Environment:        getEnv("ENVIRONMENT", "production"),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", BackendMemory)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "votes.db"),
		RedisURL:           getEnv("REDIS_URL", ""),
		IdentityDimensions: dims,
		IdentitySecret:     getEnv("IDENTITY_SECRET", ""),
		HeartbeatWindow:    heartbeat,
		TimestampTolerance: tolerance,
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		AuthJWTIssuer:      getEnv("AUTH_JWT_ISSUER", ""),
		AdminKey:           getEnv("ADMIN_KEY", ""),
		TrustProxy:         getBoolEnv("TRUST_PROXY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORAGE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("STORAGE_BACKEND=redis requires REDIS_URL")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("STORAGE_BACKEND=sqlite requires SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want memory, postgres, redis or sqlite)", c.StorageBackend)
	}

	switch c.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want json or console)", c.LogFormat)
	}

	if len(c.IdentityDimensions) == 0 {
		return fmt.Errorf("at least one identity dimension is required")
	}
	if c.HeartbeatWindow <= 0 {
		return fmt.Errorf("HEARTBEAT_WINDOW must be positive")
	}
	if c.TimestampTolerance <= 0 {
		return fmt.Errorf("TIMESTAMP_TOLERANCE must be positive")
	}
	return nil
}

// HasDimension reports whether d is part of the identity policy
func (c *Config) HasDimension(d domain.Dimension) bool {
	for _, dim := range c.IdentityDimensions {
		if dim == d {
			return true
		}
	}
	return false
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("30s") or a bare number of seconds
func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
