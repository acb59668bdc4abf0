// Package billing reconciles subscription lifecycle webhooks into tenant state.
//
// # Overview
//
// The billing provider delivers events at least once and in no particular
// order. This package authenticates each delivery, routes it to a handler by
// event type, and folds it into tenant state through conditional writes so
// that duplicates and stale arrivals are harmless.
//
// # Components
//
// Verifier authenticates the raw payload before any parsing:
//
//	verifier := billing.NewVerifier(secret, 5*time.Minute)
//	event, err := verifier.Verify(body, r.Header.Get(api.SignatureHeader))
//	if billing.IsSignatureError(err) {
//		// 400, provider will not retry
//	}
//
// Dispatcher maps event types to handlers. NewReconciliationDispatcher wires
// the four lifecycle handlers; unknown types come back as ResultUnhandled so
// the caller can acknowledge them:
//
//	dispatcher := billing.NewReconciliationDispatcher(store, catalog, provider, logger)
//	outcome, err := dispatcher.Dispatch(ctx, event)
//
// DedupLog short-circuits redelivered events. Both backends bound retention
// with a TTL; entries are marked only after successful processing so a failed
// delivery stays eligible for retry:
//
//	dedup := billing.NewMemoryDedupLog(10000, 24*time.Hour)
//	dedup := billing.NewRedisDedupLog(client, 24*time.Hour)
//
// ProviderClient fetches the full subscription object on checkout completion,
// since the checkout session carries only a reference id.
//
// # Related Packages
//
//   - pkg/tenants: the Store interface reconciling writes land in
//   - pkg/plans: plan to entitlement mapping
//   - pkg/api: HTTP endpoint driving verification and dispatch
package billing
