package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/tenants"
)

// CheckoutCompletedHandler reconciles checkout.session.completed events.
// The session metadata names the tenant and purchased plan; the full
// subscription object is fetched from the provider for the billing period
// bounds, then everything lands in one conditional write.
type CheckoutCompletedHandler struct {
	store    tenants.Store
	catalog  *plans.Catalog
	provider SubscriptionFetcher
	logger   *observability.Logger
}

// NewCheckoutCompletedHandler creates the checkout completion handler.
func NewCheckoutCompletedHandler(store tenants.Store, catalog *plans.Catalog, provider SubscriptionFetcher, logger *observability.Logger) *CheckoutCompletedHandler {
	return &CheckoutCompletedHandler{store: store, catalog: catalog, provider: provider, logger: logger}
}

// Handle applies the checkout transition.
func (h *CheckoutCompletedHandler) Handle(ctx context.Context, event *Event) (Outcome, error) {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	if session.Metadata.TenantID == "" || session.Metadata.Plan == "" {
		h.logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"session_id": session.ID,
		}).Warn("checkout session without tenant metadata")
		return Outcome{Result: ResultUnmatched}, nil
	}

	entitlement, err := h.catalog.EntitlementsFor(session.Metadata.Plan)
	if err != nil {
		return Outcome{}, err
	}

	subscription, err := h.provider.FetchSubscription(ctx, session.Subscription)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to fetch subscription %s: %w", session.Subscription, err)
	}

	tenantID := session.Metadata.TenantID
	plan := session.Metadata.Plan
	status := tenants.StatusActive
	periodStart := unixTime(subscription.CurrentPeriodStart)
	periodEnd := unixTime(subscription.CurrentPeriodEnd)
	eventAt := event.EventAt()
	settings := entitlementSettings(entitlement)

	err = h.store.Update(ctx, tenantID, tenants.UpdateFields{
		Plan:                   &plan,
		Status:                 &status,
		ExternalCustomerID:     &session.Customer,
		ExternalSubscriptionID: &subscription.ID,
		CurrentPeriodStart:     periodStart,
		CurrentPeriodEnd:       periodEnd,
		Settings:               &settings,
		EventAt:                &eventAt,
	})
	return resolveUpdate(h.logger, event, tenantID, err)
}

// SubscriptionUpdatedHandler reconciles customer.subscription.updated
// events. Only status and period bounds move; plan and entitlements are
// untouched by this event type.
type SubscriptionUpdatedHandler struct {
	store  tenants.Store
	logger *observability.Logger
}

// NewSubscriptionUpdatedHandler creates the subscription update handler.
func NewSubscriptionUpdatedHandler(store tenants.Store, logger *observability.Logger) *SubscriptionUpdatedHandler {
	return &SubscriptionUpdatedHandler{store: store, logger: logger}
}

// Handle applies the status and period update.
func (h *SubscriptionUpdatedHandler) Handle(ctx context.Context, event *Event) (Outcome, error) {
	var subscription ProviderSubscription
	if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode subscription: %w", err)
	}

	tenant, outcome, err := locateByCustomer(ctx, h.store, h.logger, event, subscription.Customer)
	if tenant == nil {
		return outcome, err
	}

	status := subscriptionStatus(subscription.Status)
	eventAt := event.EventAt()
	err = h.store.Update(ctx, tenant.ID, tenants.UpdateFields{
		Status:             &status,
		CurrentPeriodStart: unixTime(subscription.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(subscription.CurrentPeriodEnd),
		EventAt:            &eventAt,
	})
	return resolveUpdate(h.logger, event, tenant.ID, err)
}

// SubscriptionDeletedHandler reconciles customer.subscription.deleted
// events by reverting the tenant to the free tier. The external customer
// id is preserved as the durable join key for future re-subscription.
type SubscriptionDeletedHandler struct {
	store  tenants.Store
	logger *observability.Logger
}

// NewSubscriptionDeletedHandler creates the subscription deletion handler.
func NewSubscriptionDeletedHandler(store tenants.Store, logger *observability.Logger) *SubscriptionDeletedHandler {
	return &SubscriptionDeletedHandler{store: store, logger: logger}
}

// Handle reverts the tenant to free-tier defaults.
func (h *SubscriptionDeletedHandler) Handle(ctx context.Context, event *Event) (Outcome, error) {
	var subscription ProviderSubscription
	if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode subscription: %w", err)
	}

	tenant, outcome, err := locateByCustomer(ctx, h.store, h.logger, event, subscription.Customer)
	if tenant == nil {
		return outcome, err
	}

	plan := tenants.PlanFree
	status := tenants.StatusCancelled
	settings := entitlementSettings(plans.FreeTier())
	eventAt := event.EventAt()
	err = h.store.Update(ctx, tenant.ID, tenants.UpdateFields{
		Plan:                        &plan,
		Status:                      &status,
		ClearExternalSubscriptionID: true,
		Settings:                    &settings,
		EventAt:                     &eventAt,
	})
	return resolveUpdate(h.logger, event, tenant.ID, err)
}

// PaymentFailedHandler reconciles invoice.payment_failed events. The
// tenant moves to past_due; entitlements stay intact since grace period
// enforcement is the consuming application's policy call.
type PaymentFailedHandler struct {
	store  tenants.Store
	logger *observability.Logger
}

// NewPaymentFailedHandler creates the payment failure handler.
func NewPaymentFailedHandler(store tenants.Store, logger *observability.Logger) *PaymentFailedHandler {
	return &PaymentFailedHandler{store: store, logger: logger}
}

// Handle marks the tenant past due.
func (h *PaymentFailedHandler) Handle(ctx context.Context, event *Event) (Outcome, error) {
	var invoice Invoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode invoice: %w", err)
	}

	tenant, outcome, err := locateByCustomer(ctx, h.store, h.logger, event, invoice.Customer)
	if tenant == nil {
		return outcome, err
	}

	status := tenants.StatusPastDue
	eventAt := event.EventAt()
	err = h.store.Update(ctx, tenant.ID, tenants.UpdateFields{
		Status:  &status,
		EventAt: &eventAt,
	})
	return resolveUpdate(h.logger, event, tenant.ID, err)
}

// locateByCustomer resolves the tenant bound to a billing customer id.
// Zero matches is a soft unmatched outcome; more than one is a
// data-quality defect, logged, with the oldest tenant acted on.
func locateByCustomer(ctx context.Context, store tenants.Store, logger *observability.Logger, event *Event, customerID string) (*tenants.Tenant, Outcome, error) {
	if customerID == "" {
		logger.WithField("event_id", event.ID).Warn("event without customer id")
		return nil, Outcome{Result: ResultUnmatched}, nil
	}

	matches, err := store.FindByExternalCustomerID(ctx, customerID)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("failed to find tenant for customer %s: %w", customerID, err)
	}
	if len(matches) == 0 {
		logger.WithFields(map[string]interface{}{
			"event_id":    event.ID,
			"customer_id": customerID,
		}).Info("no tenant matches customer id")
		return nil, Outcome{Result: ResultUnmatched}, nil
	}
	if len(matches) > 1 {
		logger.WithFields(map[string]interface{}{
			"event_id":    event.ID,
			"customer_id": customerID,
			"tenant_ids":  tenantIDs(matches),
		}).Error("multiple tenants bound to one customer id")
	}

	return matches[0], Outcome{}, nil
}

// resolveUpdate maps store results to outcomes. A stale rejection and a
// vanished tenant are both acknowledged; anything else propagates so the
// provider redelivers.
func resolveUpdate(logger *observability.Logger, event *Event, tenantID string, err error) (Outcome, error) {
	switch {
	case err == nil:
		return Outcome{Result: ResultApplied, TenantID: tenantID}, nil
	case errors.Is(err, tenants.ErrStaleEvent):
		logger.WithFields(map[string]interface{}{
			"event_id":  event.ID,
			"tenant_id": tenantID,
		}).Info("discarding stale event")
		return Outcome{Result: ResultStale, TenantID: tenantID}, nil
	case errors.Is(err, tenants.ErrTenantNotFound):
		logger.WithFields(map[string]interface{}{
			"event_id":  event.ID,
			"tenant_id": tenantID,
		}).Warn("tenant not found for reconciling write")
		return Outcome{Result: ResultUnmatched, TenantID: tenantID}, nil
	default:
		return Outcome{}, fmt.Errorf("failed to reconcile tenant %s: %w", tenantID, err)
	}
}

// subscriptionStatus maps provider status strings onto the tenant status
// set. Trial and grace states count as active; terminal provider states
// count as cancelled.
func subscriptionStatus(providerStatus string) tenants.Status {
	switch providerStatus {
	case "past_due":
		return tenants.StatusPastDue
	case "canceled", "cancelled", "unpaid", "incomplete_expired":
		return tenants.StatusCancelled
	default:
		return tenants.StatusActive
	}
}

func entitlementSettings(e plans.Entitlement) tenants.Settings {
	return tenants.Settings{
		MaxUsers:        e.MaxUsers,
		MaxStorageBytes: e.MaxStorageBytes,
		Features:        e.Features,
	}
}

func unixTime(seconds int64) *time.Time {
	if seconds == 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}

func tenantIDs(list []*tenants.Tenant) []string {
	ids := make([]string, len(list))
	for i, t := range list {
		ids[i] = t.ID
	}
	return ids
}
