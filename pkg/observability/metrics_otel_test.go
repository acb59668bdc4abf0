package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeterProvider creates a test meter provider with a manual reader
func setupTestMeterProvider(t *testing.T) (*metric.MeterProvider, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return provider, reader
}

func TestNewOTelMetrics(t *testing.T) {
	t.Run("successful initialization", func(t *testing.T) {
		provider, _ := setupTestMeterProvider(t)
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				t.Logf("Error shutting down provider: %v", err)
			}
		}()

		m, err := NewOTelMetrics()
		if err != nil {
			t.Fatalf("NewOTelMetrics() error = %v, want nil", err)
		}

		if m == nil {
			t.Fatal("NewOTelMetrics() returned nil metrics")
		}

		// Verify that all metric instruments are initialized
		if m.httpRequestsTotal == nil {
			t.Error("httpRequestsTotal is nil")
		}
		if m.httpRequestDuration == nil {
			t.Error("httpRequestDuration is nil")
		}
		if m.httpRequestSize == nil {
			t.Error("httpRequestSize is nil")
		}
		if m.httpResponseSize == nil {
			t.Error("httpResponseSize is nil")
		}
		if m.dbConnectionsActive == nil {
			t.Error("dbConnectionsActive is nil")
		}
		if m.dbConnectionsIdle == nil {
			t.Error("dbConnectionsIdle is nil")
		}
		if m.dbQueryDuration == nil {
			t.Error("dbQueryDuration is nil")
		}
		if m.dbQueriesTotal == nil {
			t.Error("dbQueriesTotal is nil")
		}
		if m.webhookEventsTotal == nil {
			t.Error("webhookEventsTotal is nil")
		}
		if m.webhookEventDuration == nil {
			t.Error("webhookEventDuration is nil")
		}
		if m.dedupHitsTotal == nil {
			t.Error("dedupHitsTotal is nil")
		}
		if m.dedupMissesTotal == nil {
			t.Error("dedupMissesTotal is nil")
		}
	})
}

func TestOTelMetrics_RecordHTTPRequest(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		route        string
		statusCode   int
		duration     time.Duration
		requestSize  int64
		responseSize int64
	}{
		{
			name:         "successful GET request",
			method:       "GET",
			route:        "/tenants/{id}",
			statusCode:   200,
			duration:     100 * time.Millisecond,
			requestSize:  0,
			responseSize: 1024,
		},
		{
			name:         "POST request with request body",
			method:       "POST",
			route:        "/webhooks/subscription",
			statusCode:   200,
			duration:     250 * time.Millisecond,
			requestSize:  512,
			responseSize: 32,
		},
		{
			name:         "error response",
			method:       "GET",
			route:        "/tenants/{id}",
			statusCode:   404,
			duration:     50 * time.Millisecond,
			requestSize:  0,
			responseSize: 128,
		},
		{
			name:         "zero sizes",
			method:       "GET",
			route:        "/health",
			statusCode:   204,
			duration:     75 * time.Millisecond,
			requestSize:  0,
			responseSize: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, reader := setupTestMeterProvider(t)
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					t.Logf("Error shutting down provider: %v", err)
				}
			}()

			m, err := NewOTelMetrics()
			if err != nil {
				t.Fatalf("NewOTelMetrics() error = %v", err)
			}

			ctx := context.Background()
			m.RecordHTTPRequest(ctx, tt.method, tt.route, tt.statusCode, tt.duration, tt.requestSize, tt.responseSize)

			// Collect metrics
			var rm metricdata.ResourceMetrics
			err = reader.Collect(ctx, &rm)
			if err != nil {
				t.Fatalf("Failed to collect metrics: %v", err)
			}

			// Verify metrics were recorded
			if len(rm.ScopeMetrics) == 0 {
				t.Error("No scope metrics recorded")
				return
			}

			foundCounter := false
			foundDuration := false
			foundRequestSize := false
			foundResponseSize := false

			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					switch m.Name {
					case "http.server.requests":
						foundCounter = true
						if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
							if len(sum.DataPoints) > 0 && sum.DataPoints[0].Value != 1 {
								t.Errorf("Expected counter value 1, got %d", sum.DataPoints[0].Value)
							}
						}
					case "http.server.duration":
						foundDuration = true
					case "http.server.request.size":
						if tt.requestSize > 0 {
							foundRequestSize = true
						}
					case "http.server.response.size":
						if tt.responseSize > 0 {
							foundResponseSize = true
						}
					}
				}
			}

			if !foundCounter {
				t.Error("HTTP request counter not recorded")
			}
			if !foundDuration {
				t.Error("HTTP request duration not recorded")
			}
			if tt.requestSize > 0 && !foundRequestSize {
				t.Error("HTTP request size not recorded when requestSize > 0")
			}
			if tt.responseSize > 0 && !foundResponseSize {
				t.Error("HTTP response size not recorded when responseSize > 0")
			}
		})
	}
}

func TestOTelMetrics_RecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		duration  time.Duration
		err       error
	}{
		{
			name:      "successful SELECT",
			operation: "SELECT",
			duration:  50 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "successful UPDATE",
			operation: "UPDATE",
			duration:  100 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "failed UPDATE",
			operation: "UPDATE",
			duration:  75 * time.Millisecond,
			err:       errors.New("constraint violation"),
		},
		{
			name:      "failed SELECT",
			operation: "SELECT",
			duration:  25 * time.Millisecond,
			err:       errors.New("connection timeout"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, reader := setupTestMeterProvider(t)
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					t.Logf("Error shutting down provider: %v", err)
				}
			}()

			m, err := NewOTelMetrics()
			if err != nil {
				t.Fatalf("NewOTelMetrics() error = %v", err)
			}

			ctx := context.Background()
			m.RecordDBQuery(ctx, tt.operation, tt.duration, tt.err)

			// Collect metrics
			var rm metricdata.ResourceMetrics
			err = reader.Collect(ctx, &rm)
			if err != nil {
				t.Fatalf("Failed to collect metrics: %v", err)
			}

			// Verify metrics were recorded
			foundCounter := false
			foundDuration := false

			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					switch m.Name {
					case "db.queries.total":
						foundCounter = true
						if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
							if len(sum.DataPoints) > 0 && sum.DataPoints[0].Value != 1 {
								t.Errorf("Expected counter value 1, got %d", sum.DataPoints[0].Value)
							}
						}
					case "db.query.duration":
						foundDuration = true
					}
				}
			}

			if !foundCounter {
				t.Error("DB queries counter not recorded")
			}
			if !foundDuration {
				t.Error("DB query duration not recorded")
			}
		})
	}
}

func TestOTelMetrics_UpdateDBConnectionStats(t *testing.T) {
	tests := []struct {
		name   string
		active int
		idle   int
	}{
		{
			name:   "typical connection pool",
			active: 5,
			idle:   3,
		},
		{
			name:   "fully utilized pool",
			active: 10,
			idle:   0,
		},
		{
			name:   "idle pool",
			active: 0,
			idle:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, reader := setupTestMeterProvider(t)
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					t.Logf("Error shutting down provider: %v", err)
				}
			}()

			m, err := NewOTelMetrics()
			if err != nil {
				t.Fatalf("NewOTelMetrics() error = %v", err)
			}

			ctx := context.Background()
			m.UpdateDBConnectionStats(ctx, tt.active, tt.idle)

			// Collect metrics
			var rm metricdata.ResourceMetrics
			err = reader.Collect(ctx, &rm)
			if err != nil {
				t.Fatalf("Failed to collect metrics: %v", err)
			}

			// Verify metrics were recorded
			foundActive := false
			foundIdle := false

			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					switch m.Name {
					case "db.connections.active":
						foundActive = true
					case "db.connections.idle":
						foundIdle = true
					}
				}
			}

			if !foundActive {
				t.Error("DB connections active metric not recorded")
			}
			if !foundIdle {
				t.Error("DB connections idle metric not recorded")
			}
		})
	}
}

func TestOTelMetrics_RecordWebhookEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		result    string
		duration  time.Duration
	}{
		{
			name:      "applied checkout event",
			eventType: "checkout.session.completed",
			result:    "applied",
			duration:  200 * time.Millisecond,
		},
		{
			name:      "stale subscription update",
			eventType: "customer.subscription.updated",
			result:    "stale",
			duration:  30 * time.Millisecond,
		},
		{
			name:      "unmatched payment failure",
			eventType: "invoice.payment_failed",
			result:    "unmatched",
			duration:  15 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, reader := setupTestMeterProvider(t)
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					t.Logf("Error shutting down provider: %v", err)
				}
			}()

			m, err := NewOTelMetrics()
			if err != nil {
				t.Fatalf("NewOTelMetrics() error = %v", err)
			}

			ctx := context.Background()
			m.RecordWebhookEvent(ctx, tt.eventType, tt.result, tt.duration)

			var rm metricdata.ResourceMetrics
			err = reader.Collect(ctx, &rm)
			if err != nil {
				t.Fatalf("Failed to collect metrics: %v", err)
			}

			foundCounter := false
			foundDuration := false

			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					switch m.Name {
					case "webhook.events.total":
						foundCounter = true
						if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
							if len(sum.DataPoints) > 0 && sum.DataPoints[0].Value != 1 {
								t.Errorf("Expected counter value 1, got %d", sum.DataPoints[0].Value)
							}
						}
					case "webhook.event.duration":
						foundDuration = true
					}
				}
			}

			if !foundCounter {
				t.Error("Webhook events counter not recorded")
			}
			if !foundDuration {
				t.Error("Webhook event duration not recorded")
			}
		})
	}
}

func TestOTelMetrics_RecordDedupHitAndMiss(t *testing.T) {
	t.Run("records hits and misses per backend", func(t *testing.T) {
		provider, reader := setupTestMeterProvider(t)
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				t.Logf("Error shutting down provider: %v", err)
			}
		}()

		m, err := NewOTelMetrics()
		if err != nil {
			t.Fatalf("NewOTelMetrics() error = %v", err)
		}

		ctx := context.Background()
		m.RecordDedupHit(ctx, "redis")
		m.RecordDedupHit(ctx, "redis")
		m.RecordDedupMiss(ctx, "redis")
		m.RecordDedupMiss(ctx, "memory")

		var rm metricdata.ResourceMetrics
		err = reader.Collect(ctx, &rm)
		if err != nil {
			t.Fatalf("Failed to collect metrics: %v", err)
		}

		foundHits := false
		foundMisses := false

		for _, sm := range rm.ScopeMetrics {
			for _, met := range sm.Metrics {
				switch met.Name {
				case "dedup.hits.total":
					foundHits = true
					if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
						var total int64
						for _, dp := range sum.DataPoints {
							total += dp.Value
						}
						if total != 2 {
							t.Errorf("Expected 2 hits, got %d", total)
						}
					}
				case "dedup.misses.total":
					foundMisses = true
					if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
						if len(sum.DataPoints) != 2 {
							t.Errorf("Expected 2 backend data points, got %d", len(sum.DataPoints))
						}
					}
				}
			}
		}

		if !foundHits {
			t.Error("Dedup hits counter not recorded")
		}
		if !foundMisses {
			t.Error("Dedup misses counter not recorded")
		}
	})
}

func TestOTelMetrics_MultipleOperations(t *testing.T) {
	t.Run("accumulates across operations", func(t *testing.T) {
		provider, reader := setupTestMeterProvider(t)
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				t.Logf("Error shutting down provider: %v", err)
			}
		}()

		m, err := NewOTelMetrics()
		if err != nil {
			t.Fatalf("NewOTelMetrics() error = %v", err)
		}

		ctx := context.Background()

		m.RecordHTTPRequest(ctx, "POST", "/webhooks/subscription", 200, 100*time.Millisecond, 512, 32)
		m.RecordHTTPRequest(ctx, "POST", "/webhooks/subscription", 200, 120*time.Millisecond, 480, 32)
		m.RecordHTTPRequest(ctx, "POST", "/webhooks/subscription", 400, 10*time.Millisecond, 64, 96)
		m.RecordWebhookEvent(ctx, "checkout.session.completed", "applied", 200*time.Millisecond)
		m.RecordWebhookEvent(ctx, "checkout.session.completed", "duplicate", 5*time.Millisecond)
		m.RecordDBQuery(ctx, "UPDATE", 40*time.Millisecond, nil)

		var rm metricdata.ResourceMetrics
		err = reader.Collect(ctx, &rm)
		if err != nil {
			t.Fatalf("Failed to collect metrics: %v", err)
		}

		for _, sm := range rm.ScopeMetrics {
			for _, met := range sm.Metrics {
				if met.Name == "http.server.requests" {
					if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
						var total int64
						for _, dp := range sum.DataPoints {
							total += dp.Value
						}
						if total != 3 {
							t.Errorf("Expected 3 HTTP requests, got %d", total)
						}
					}
				}
				if met.Name == "webhook.events.total" {
					if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
						var total int64
						for _, dp := range sum.DataPoints {
							total += dp.Value
						}
						if total != 2 {
							t.Errorf("Expected 2 webhook events, got %d", total)
						}
					}
				}
			}
		}
	})
}
