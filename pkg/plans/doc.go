// Package plans defines the static mapping from billing plan identifiers to
// the entitlement bundle a tenant on that plan receives. The catalog is
// loaded once at process start and injected into the webhook dispatcher;
// it is never mutated afterwards.
package plans
