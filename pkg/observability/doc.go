// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure including JSON logging, metrics
// collection, health checks, and distributed tracing integration.
//
// # Structured Logging
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Infof("Server started on port %s", port)
//
// Enrich with fields:
//
//	logger.WithField("request_id", reqID).WithError(err).Error("Request failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("POST", "/webhooks/subscription", "200").Inc()
//	metrics.HTTPRequestDuration.WithLabelValues("POST", "/webhooks/subscription").Observe(0.123)
//
// Business metrics:
//
//	metrics.WebhookEventsTotal.WithLabelValues("customer.subscription.updated", "applied").Inc()
//	metrics.DedupHitsTotal.WithLabelValues("redis").Inc()
//
// # Health Checks
//
// Configure a health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//	fmt.Printf("Status: %s\n", status.Status)
//
// # OpenTelemetry
//
// Initialize tracing:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:        true,
//		Endpoint:       "otel-collector:4317",
//		ServiceName:    "tollgate",
//		ServiceVersion: "v1.0.0",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: HTTP middleware wiring
package observability
