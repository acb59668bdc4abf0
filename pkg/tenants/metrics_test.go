package tenants

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tollgate/pkg/observability"
)

type stubStore struct {
	tenant    *Tenant
	updateErr error
}

func (s *stubStore) GetByID(ctx context.Context, id string) (*Tenant, error) {
	if s.tenant == nil {
		return nil, ErrTenantNotFound
	}
	return s.tenant, nil
}

func (s *stubStore) FindByExternalCustomerID(ctx context.Context, customerID string) ([]*Tenant, error) {
	return nil, nil
}

func (s *stubStore) Update(ctx context.Context, id string, fields UpdateFields) error {
	return s.updateErr
}

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()

	t.Run("successful operations counted", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)
		store := NewInstrumentedStore(&stubStore{tenant: &Tenant{ID: "t1"}}, metrics, "postgres")

		tenant, err := store.GetByID(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "t1", tenant.ID)

		_, err = store.FindByExternalCustomerID(ctx, "cus_1")
		require.NoError(t, err)

		require.NoError(t, store.Update(ctx, "t1", UpdateFields{}))

		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreOperationsTotal.WithLabelValues("get_by_id", "postgres", "success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreOperationsTotal.WithLabelValues("find_by_customer", "postgres", "success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreOperationsTotal.WithLabelValues("update", "postgres", "success")))
	})

	t.Run("errors classified", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)
		store := NewInstrumentedStore(&stubStore{updateErr: ErrStaleEvent}, metrics, "sqlite")

		_, err := store.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrTenantNotFound)

		err = store.Update(ctx, "t1", UpdateFields{})
		assert.ErrorIs(t, err, ErrStaleEvent)

		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreErrorsTotal.WithLabelValues("get_by_id", "sqlite", "not_found")))
		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreErrorsTotal.WithLabelValues("update", "sqlite", "stale")))
		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreOperationsTotal.WithLabelValues("update", "sqlite", "error")))
	})

	t.Run("unexpected errors are other", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)
		store := NewInstrumentedStore(&stubStore{updateErr: errors.New("pq: connection reset")}, metrics, "postgres")

		err := store.Update(ctx, "t1", UpdateFields{})
		require.Error(t, err)

		assert.Equal(t, float64(1), testutil.ToFloat64(
			metrics.StoreErrorsTotal.WithLabelValues("update", "postgres", "other")))
	})
}
