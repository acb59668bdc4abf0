package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tollgate/pkg/billing"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/tenants"
)

// SignatureHeader carries the timestamped HMAC signature of the raw webhook body.
const SignatureHeader = "Billing-Signature"

// Server represents the API server for webhook ingestion and tenant reads
type Server struct {
	router     *mux.Router
	store      tenants.Store
	catalog    *plans.Catalog
	verifier   *billing.Verifier
	dispatcher *billing.Dispatcher
	dedup      billing.DedupLog
	logger     *observability.Logger
	metrics    *observability.Metrics

	maxBodyBytes int64
	dedupBackend string
	tracing      bool
}

// Options configures a Server
type Options struct {
	Store      tenants.Store
	Catalog    *plans.Catalog
	Verifier   *billing.Verifier
	Dispatcher *billing.Dispatcher
	Dedup      billing.DedupLog
	Logger     *observability.Logger
	Metrics    *observability.Metrics

	// MaxBodyBytes bounds the webhook request body. Zero means 1 MiB.
	MaxBodyBytes int64
	// DedupBackend labels dedup metrics ("memory" or "redis").
	DedupBackend string
	// Tracing wraps the handler chain with otelhttp when true.
	Tracing bool
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		store:        opts.Store,
		catalog:      opts.Catalog,
		verifier:     opts.Verifier,
		dispatcher:   opts.Dispatcher,
		dedup:        opts.Dedup,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		maxBodyBytes: opts.MaxBodyBytes,
		dedupBackend: opts.DedupBackend,
		tracing:      opts.Tracing,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = 1 << 20
	}
	if s.dedupBackend == "" {
		s.dedupBackend = "memory"
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/webhooks/subscription", s.handleWebhook).Methods("POST")

	s.router.HandleFunc("/tenants/{id}", s.getTenant).Methods("GET")
	s.router.HandleFunc("/tenants/{id}/entitlements", s.getTenantEntitlements).Methods("GET")
}

// Handler returns the server wrapped in the standard middleware chain
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}

	handler := httputil.Chain(middlewares...)(s.router)
	if s.tracing {
		handler = otelhttp.NewHandler(handler, "tollgate-api")
	}
	return handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
