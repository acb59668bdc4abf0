package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Billing provider configuration
	Billing BillingConfig

	// Event deduplication configuration
	Dedup DedupConfig

	// Plan catalog configuration
	Plans PlansConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// MaxBodyBytes caps the webhook request body size
	MaxBodyBytes int64
}

// StoreConfig holds tenant store configuration
type StoreConfig struct {
	// Type selects the backend: postgres or sqlite
	Type string

	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	SQLitePath string
}

// BillingConfig holds webhook and provider API configuration
type BillingConfig struct {
	// WebhookSecret is the shared secret for signature verification
	WebhookSecret string

	// SignatureTolerance bounds signature timestamp drift
	SignatureTolerance time.Duration

	ProviderAPIKey  string
	ProviderBaseURL string
	ProviderTimeout time.Duration
}

// DedupConfig holds event deduplication settings
type DedupConfig struct {
	// Backend selects the dedup log: memory or redis
	Backend string

	// TTL is the retention window for seen event ids
	TTL time.Duration

	// MaxEntries bounds the in-memory backend
	MaxEntries int

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// PlansConfig holds plan catalog settings
type PlansConfig struct {
	// CatalogPath optionally overrides the built-in catalog with a JSON file
	CatalogPath string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Billing:       loadBillingConfig(),
		Dedup:         loadDedupConfig(),
		Plans:         loadPlansConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TOLLGATE_HOST", "0.0.0.0"),
		Port:            getEnv("TOLLGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TOLLGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TOLLGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TOLLGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TOLLGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("TOLLGATE_HEALTH_PORT", "9090"),
		MaxBodyBytes:    getEnvInt64("TOLLGATE_MAX_BODY_BYTES", 1<<20),
	}
}

// loadStoreConfig loads tenant store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:             getEnv("TOLLGATE_STORE_TYPE", "postgres"),
		PostgresURL:      getEnv("TOLLGATE_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("TOLLGATE_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns: getEnvInt("TOLLGATE_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:  getEnvDuration("TOLLGATE_POSTGRES_TIMEOUT", 5*time.Second),
		SQLitePath:       getEnv("TOLLGATE_SQLITE_PATH", "tollgate.db"),
	}
}

// loadBillingConfig loads billing provider configuration from environment
func loadBillingConfig() BillingConfig {
	return BillingConfig{
		WebhookSecret:      getEnv("TOLLGATE_WEBHOOK_SECRET", ""),
		SignatureTolerance: getEnvDuration("TOLLGATE_SIGNATURE_TOLERANCE", 5*time.Minute),
		ProviderAPIKey:     getEnv("TOLLGATE_PROVIDER_API_KEY", ""),
		ProviderBaseURL:    getEnv("TOLLGATE_PROVIDER_BASE_URL", "https://api.billing.example.com"),
		ProviderTimeout:    getEnvDuration("TOLLGATE_PROVIDER_TIMEOUT", 10*time.Second),
	}
}

// loadDedupConfig loads deduplication configuration from environment
func loadDedupConfig() DedupConfig {
	return DedupConfig{
		Backend:       getEnv("TOLLGATE_DEDUP_BACKEND", "memory"),
		TTL:           getEnvDuration("TOLLGATE_DEDUP_TTL", 24*time.Hour),
		MaxEntries:    getEnvInt("TOLLGATE_DEDUP_MAX_ENTRIES", 10000),
		RedisURL:      getEnv("TOLLGATE_REDIS_URL", ""),
		RedisPassword: getEnv("TOLLGATE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("TOLLGATE_REDIS_DB", 0),
	}
}

// loadPlansConfig loads plan catalog configuration from environment
func loadPlansConfig() PlansConfig {
	return PlansConfig{
		CatalogPath: getEnv("TOLLGATE_PLAN_CATALOG_PATH", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("TOLLGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TOLLGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TOLLGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TOLLGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TOLLGATE_OTEL_SERVICE_NAME", "tollgate"),
		OTelServiceVersion: getEnv("TOLLGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TOLLGATE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate store config based on type
	switch c.Store.Type {
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be postgres or sqlite)", c.Store.Type)
	}

	// Validate billing config
	if c.Billing.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	if c.Billing.SignatureTolerance <= 0 {
		return fmt.Errorf("signature tolerance must be positive")
	}

	// Validate dedup config
	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Dedup.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis dedup backend")
		}
	default:
		return fmt.Errorf("invalid dedup backend: %s (must be memory or redis)", c.Dedup.Backend)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
