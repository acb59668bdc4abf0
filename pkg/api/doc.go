// Package api provides the HTTP server for webhook ingestion and tenant reads.
//
// # Overview
//
// This package exposes the billing reconciliation core over HTTP. It hosts the
// webhook endpoint that authenticates and dispatches provider events, plus
// read-only tenant endpoints used by internal dashboards.
//
// # Architecture
//
// The API is built on gorilla/mux with a small middleware chain (panic
// recovery, request IDs, structured request logging, Prometheus metrics, and
// optional OpenTelemetry tracing):
//
//   - Webhook Ingestion: authenticate raw payloads, short-circuit duplicates,
//     dispatch to reconciliation handlers
//   - Tenant Reads: fetch a tenant record or its current entitlements
//
// # API Endpoints
//
//	POST   /webhooks/subscription      - Ingest a signed billing event
//	GET    /tenants/{id}               - Get tenant details
//	GET    /tenants/{id}/entitlements  - Get current plan entitlements
//
// Health and metrics endpoints are served on a separate port by the health
// server configured in cmd/tollgate.
//
// # Webhook Semantics
//
// The raw body is verified against the Billing-Signature header before any
// parsing. Authenticated deliveries always return 200 with {"received": true}
// unless reconciliation fails; 400 means the provider should not redeliver,
// 500 means it should.
//
// # Usage Example
//
//	server := api.NewServer(api.Options{
//		Store:      store,
//		Catalog:    catalog,
//		Verifier:   verifier,
//		Dispatcher: dispatcher,
//		Dedup:      dedup,
//		Logger:     logger,
//		Metrics:    metrics,
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// # Related Packages
//
//   - pkg/billing: Signature verification, dispatch, reconciliation handlers
//   - pkg/tenants: Tenant state persistence
//   - pkg/plans: Plan catalog and entitlements
package api
