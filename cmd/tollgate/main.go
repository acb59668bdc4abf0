package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tollgate/pkg/api"
	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/config"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting tollgate")

	ctx := context.Background()

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Tenant store
	store, db, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tenant store")
		os.Exit(1)
	}
	if metrics != nil {
		store = tenants.NewInstrumentedStore(store, metrics, cfg.Store.Type)
	}

	// Dedup log
	dedup, redisClient, err := openDedupLog(ctx, cfg.Dedup)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dedup log")
		os.Exit(1)
	}
	logger.WithField("backend", cfg.Dedup.Backend).Info("Dedup log initialized")

	// Plan catalog
	catalog, err := loadCatalog(cfg.Plans, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to load plan catalog")
		os.Exit(1)
	}

	// Billing components
	verifier := billing.NewVerifier(cfg.Billing.WebhookSecret, cfg.Billing.SignatureTolerance)
	var provider billing.SubscriptionFetcher = billing.NewProviderClient(cfg.Billing.ProviderBaseURL, cfg.Billing.ProviderAPIKey, cfg.Billing.ProviderTimeout)
	if metrics != nil {
		provider = billing.NewInstrumentedFetcher(provider, metrics)
	}
	dispatcher := billing.NewReconciliationDispatcher(store, catalog, provider, logger)

	server := api.NewServer(api.Options{
		Store:        store,
		Catalog:      catalog,
		Verifier:     verifier,
		Dispatcher:   dispatcher,
		Dedup:        dedup,
		Logger:       logger,
		Metrics:      metrics,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		DedupBackend: cfg.Dedup.Backend,
		Tracing:      cfg.Observability.OTelEnabled,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port so probes stay off the main listener
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return closeStore()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
	}
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

// openStore initializes the configured tenant store and runs migrations.
// The returned *sql.DB backs health checks and may be the store's own handle.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *observability.Logger) (tenants.Store, *sql.DB, func() error, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.PostgresMaxConns)
		db.SetMaxIdleConns(cfg.PostgresMinConns)
		db.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.PostgresTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
		}

		store := tenants.NewPostgresStore(db, cfg.PostgresTimeout)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("Postgres tenant store initialized")
		return store, db, db.Close, nil

	case "sqlite":
		store, err := tenants.NewSQLiteStore(cfg.SQLitePath, cfg.PostgresTimeout)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("SQLite tenant store initialized")
		return store, store.DB(), store.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// openDedupLog initializes the configured dedup backend. The redis client is
// returned separately so health checks and shutdown can reach it.
func openDedupLog(ctx context.Context, cfg config.DedupConfig) (billing.DedupLog, *redis.Client, error) {
	if cfg.Backend != "redis" {
		return billing.NewMemoryDedupLog(cfg.MaxEntries, cfg.TTL), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return billing.NewRedisDedupLog(client, cfg.TTL), client, nil
}

// loadCatalog returns the plan catalog, preferring a JSON override when set.
func loadCatalog(cfg config.PlansConfig, logger *observability.Logger) (*plans.Catalog, error) {
	if cfg.CatalogPath == "" {
		return plans.DefaultCatalog(), nil
	}
	catalog, err := plans.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.WithField("path", cfg.CatalogPath).Info("Loaded plan catalog override")
	return catalog, nil
}
