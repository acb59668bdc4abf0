package billing

import (
	"encoding/json"
	"time"
)

// EventType represents the type of billing provider event
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventSubscriptionUpdated EventType = "customer.subscription.updated"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
	EventPaymentFailed       EventType = "invoice.payment_failed"
)

// Event is a billing provider notification. Data.Object is left raw and
// decoded per event type by the matching handler.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Created int64     `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// EventAt returns the provider event time as a UTC instant. Reconciling
// writes carry it into the store's event-time guard.
func (e *Event) EventAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// CheckoutSession is the payload of a checkout.session.completed event.
// The tenant id and purchased plan travel in the session metadata; the
// billing period bounds do not, which forces a second round trip to the
// provider for the full subscription object.
type CheckoutSession struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Metadata     struct {
		TenantID string `json:"tenant_id"`
		Plan     string `json:"plan"`
	} `json:"metadata"`
}

// ProviderSubscription is the provider's subscription object, carried in
// subscription lifecycle events and returned by the provider API.
type ProviderSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

// Invoice is the payload of an invoice.payment_failed event.
type Invoice struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}
