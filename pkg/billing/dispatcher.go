package billing

import (
	"context"

	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/tenants"
)

// Result classifies how an authenticated event was resolved. Every result
// is acknowledged with a 200; only handler errors escalate.
type Result string

const (
	// ResultApplied means a reconciling write reached the store.
	ResultApplied Result = "applied"
	// ResultUnhandled means no handler is registered for the event type.
	ResultUnhandled Result = "unhandled"
	// ResultUnmatched means no tenant matched the event's customer id.
	ResultUnmatched Result = "unmatched"
	// ResultStale means the store rejected the write because the tenant
	// already reflects a newer event.
	ResultStale Result = "stale"
	// ResultDuplicate means the event id was already processed.
	ResultDuplicate Result = "duplicate"
)

// Outcome is the disposition of one event delivery.
type Outcome struct {
	Result   Result `json:"result"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Handler applies one event type's state transition. Handlers are
// stateless and re-read tenant state on every delivery.
type Handler interface {
	Handle(ctx context.Context, event *Event) (Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *Event) (Outcome, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event *Event) (Outcome, error) {
	return f(ctx, event)
}

// Dispatcher routes authenticated events to the handler registered for
// their type. An event type with no handler is acknowledged and logged,
// never failed, so the provider adding new event types stays harmless.
type Dispatcher struct {
	handlers map[EventType]Handler
	logger   *observability.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[EventType]Handler),
		logger:   logger,
	}
}

// Register binds a handler to an event type, replacing any previous
// binding.
func (d *Dispatcher) Register(eventType EventType, handler Handler) {
	d.handlers[eventType] = handler
}

// Dispatch routes the event to its handler and propagates the handler's
// outcome or failure. A panicking handler surfaces as a processing error,
// which keeps the delivery eligible for redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) (outcome Outcome, err error) {
	handler, ok := d.handlers[event.Type]
	if !ok {
		d.logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		}).Info("ignoring unhandled event type")
		return Outcome{Result: ResultUnhandled}, nil
	}

	defer func() {
		if perr := observability.RecoverToError(d.logger, "event "+string(event.Type), recover()); perr != nil {
			outcome = Outcome{}
			err = perr
		}
	}()

	return handler.Handle(ctx, event)
}

// NewReconciliationDispatcher wires the four subscription lifecycle
// handlers into a dispatcher.
func NewReconciliationDispatcher(
	store tenants.Store,
	catalog *plans.Catalog,
	provider SubscriptionFetcher,
	logger *observability.Logger,
) *Dispatcher {
	d := NewDispatcher(logger)
	d.Register(EventCheckoutCompleted, NewCheckoutCompletedHandler(store, catalog, provider, logger))
	d.Register(EventSubscriptionUpdated, NewSubscriptionUpdatedHandler(store, logger))
	d.Register(EventSubscriptionDeleted, NewSubscriptionDeletedHandler(store, logger))
	d.Register(EventPaymentFailed, NewPaymentFailedHandler(store, logger))
	return d
}
