package billing

import (
	"context"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

// InstrumentedFetcher wraps a SubscriptionFetcher with Prometheus
// instrumentation.
type InstrumentedFetcher struct {
	next    SubscriptionFetcher
	metrics *observability.Metrics
}

// NewInstrumentedFetcher decorates a fetcher.
func NewInstrumentedFetcher(next SubscriptionFetcher, metrics *observability.Metrics) *InstrumentedFetcher {
	return &InstrumentedFetcher{next: next, metrics: metrics}
}

func (f *InstrumentedFetcher) FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	start := time.Now()
	subscription, err := f.next.FetchSubscription(ctx, subscriptionID)

	status := "success"
	if err != nil {
		status = "error"
	}
	f.metrics.ProviderRequestsTotal.WithLabelValues("fetch_subscription", status).Inc()
	f.metrics.ProviderRequestDuration.WithLabelValues("fetch_subscription").Observe(time.Since(start).Seconds())

	return subscription, err
}
