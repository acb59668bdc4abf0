// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	TOLLGATE_HOST="0.0.0.0"
//	TOLLGATE_PORT="8080"
//	TOLLGATE_HEALTH_PORT="9090"
//	TOLLGATE_READ_TIMEOUT="15s"
//	TOLLGATE_WRITE_TIMEOUT="15s"
//
// Store settings:
//
//	TOLLGATE_STORE_TYPE="postgres"  # postgres, sqlite
//	TOLLGATE_POSTGRES_URL="postgres://localhost/tollgate"
//	TOLLGATE_POSTGRES_MAX_CONNS="25"
//	TOLLGATE_SQLITE_PATH="tollgate.db"
//
// Billing settings:
//
//	TOLLGATE_WEBHOOK_SECRET="whsec_..."
//	TOLLGATE_SIGNATURE_TOLERANCE="5m"
//	TOLLGATE_PROVIDER_API_KEY="sk_..."
//	TOLLGATE_PROVIDER_BASE_URL="https://api.billing.example.com"
//
// Deduplication settings:
//
//	TOLLGATE_DEDUP_BACKEND="memory"  # memory, redis
//	TOLLGATE_DEDUP_TTL="24h"
//	TOLLGATE_REDIS_URL="redis://localhost:6379"
//
// Observability settings:
//
//	TOLLGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	TOLLGATE_METRICS_ENABLED="true"
//	TOLLGATE_OTEL_ENABLED="true"
//	TOLLGATE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Store: %s\n", cfg.Store.Type)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/tenants: Uses store configuration
//   - pkg/observability: Uses observability configuration
package config
