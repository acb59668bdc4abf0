package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/tenants"
)

// tenantEntitlements is the read-only entitlement view of a tenant.
type tenantEntitlements struct {
	TenantID string           `json:"tenant_id"`
	Plan     string           `json:"plan"`
	Status   tenants.Status   `json:"status"`
	Settings tenants.Settings `json:"settings"`
}

// getTenant handles GET /tenants/{id}
func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	tenant, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, tenants.ErrTenantNotFound) {
			httputil.WriteNotFoundError(w, fmt.Sprintf("tenant %s not found", id))
			return
		}
		s.logger.WithError(err).WithField("tenant_id", id).Error("failed to load tenant")
		httputil.WriteInternalError(w, fmt.Errorf("failed to load tenant"))
		return
	}

	httputil.WriteSuccess(w, tenant)
}

// getTenantEntitlements handles GET /tenants/{id}/entitlements
func (s *Server) getTenantEntitlements(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	tenant, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, tenants.ErrTenantNotFound) {
			httputil.WriteNotFoundError(w, fmt.Sprintf("tenant %s not found", id))
			return
		}
		s.logger.WithError(err).WithField("tenant_id", id).Error("failed to load tenant")
		httputil.WriteInternalError(w, fmt.Errorf("failed to load tenant"))
		return
	}

	httputil.WriteSuccess(w, tenantEntitlements{
		TenantID: tenant.ID,
		Plan:     tenant.Subscription.Plan,
		Status:   tenant.Subscription.Status,
		Settings: tenant.Settings,
	})
}
