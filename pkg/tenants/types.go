package tenants

import (
	"context"
	"errors"
	"time"
)

// Status represents the lifecycle state of a tenant subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

// PlanFree is the plan a tenant reverts to when its subscription is deleted.
const PlanFree = "free"

// Subscription is the billing-provider view of a tenant.
type Subscription struct {
	Plan                   string     `json:"plan"`
	Status                 Status     `json:"status"`
	ExternalCustomerID     string     `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string     `json:"external_subscription_id,omitempty"`
	CurrentPeriodStart     *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`

	// EventAt is the provider event time of the last reconciling write.
	// Updates carrying an older event time are discarded.
	EventAt *time.Time `json:"event_at,omitempty"`
}

// Settings is the entitlement bundle currently granted to a tenant.
// It is always a pure function of Subscription.Plan and is only ever
// written together with a plan change.
type Settings struct {
	MaxUsers        int      `json:"max_users"`
	MaxStorageBytes int64    `json:"max_storage_bytes"`
	Features        []string `json:"features"`
}

// Tenant is the unit of billing state.
type Tenant struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Subscription Subscription `json:"subscription"`
	Settings     Settings     `json:"settings"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

var (
	// ErrTenantNotFound indicates a lookup or update keyed to a tenant id
	// that has no record.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrStaleEvent indicates a conditional update rejected because the
	// tenant already reflects a newer provider event.
	ErrStaleEvent = errors.New("tenant state reflects a newer event")
)

// UpdateFields is a partial, field-level tenant update. Nil pointers leave
// the column untouched. When EventAt is set, the write only applies if the
// stored event time is not newer; equal times reapply the same values,
// which keeps duplicate deliveries idempotent.
type UpdateFields struct {
	Plan   *string
	Status *Status

	// ExternalCustomerID is assigned only if the column is still null;
	// once set it is immutable for the life of the record.
	ExternalCustomerID *string

	ExternalSubscriptionID      *string
	ClearExternalSubscriptionID bool

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time

	Settings *Settings

	EventAt *time.Time
}

// IsEmpty reports whether the update would touch no columns.
func (f UpdateFields) IsEmpty() bool {
	return f.Plan == nil && f.Status == nil && f.ExternalCustomerID == nil &&
		f.ExternalSubscriptionID == nil && !f.ClearExternalSubscriptionID &&
		f.CurrentPeriodStart == nil && f.CurrentPeriodEnd == nil &&
		f.Settings == nil && f.EventAt == nil
}

// Store defines the interface for tenant state persistence.
type Store interface {
	// GetByID retrieves a tenant by primary key.
	GetByID(ctx context.Context, id string) (*Tenant, error)

	// FindByExternalCustomerID returns the tenants bound to a billing
	// customer id, ordered by creation time. The customer id is unique at
	// write time, so more than one result is a data-quality defect the
	// caller should log rather than fail on.
	FindByExternalCustomerID(ctx context.Context, customerID string) ([]*Tenant, error)

	// Update applies a partial update as one conditional statement.
	// Returns ErrTenantNotFound for an unknown id and ErrStaleEvent when
	// the event-time guard rejects the write.
	Update(ctx context.Context, id string, fields UpdateFields) error
}
