package tenants

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

// InstrumentedStore wraps a Store with Prometheus instrumentation.
type InstrumentedStore struct {
	next    Store
	metrics *observability.Metrics
	backend string
}

// NewInstrumentedStore decorates a store. The backend label distinguishes
// postgres from sqlite in the exported series.
func NewInstrumentedStore(next Store, metrics *observability.Metrics, backend string) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: metrics, backend: backend}
}

func (s *InstrumentedStore) GetByID(ctx context.Context, id string) (*Tenant, error) {
	start := time.Now()
	tenant, err := s.next.GetByID(ctx, id)
	s.observe("get_by_id", start, err)
	return tenant, err
}

func (s *InstrumentedStore) FindByExternalCustomerID(ctx context.Context, customerID string) ([]*Tenant, error) {
	start := time.Now()
	found, err := s.next.FindByExternalCustomerID(ctx, customerID)
	s.observe("find_by_customer", start, err)
	return found, err
}

func (s *InstrumentedStore) Update(ctx context.Context, id string, fields UpdateFields) error {
	start := time.Now()
	err := s.next.Update(ctx, id, fields)
	s.observe("update", start, err)
	return err
}

func (s *InstrumentedStore) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		s.metrics.StoreErrorsTotal.WithLabelValues(operation, s.backend, errorType(err)).Inc()
	}
	s.metrics.StoreOperationsTotal.WithLabelValues(operation, s.backend, status).Inc()
	s.metrics.StoreOperationDuration.WithLabelValues(operation, s.backend).Observe(time.Since(start).Seconds())
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return "not_found"
	case errors.Is(err, ErrStaleEvent):
		return "stale"
	default:
		return "other"
	}
}
