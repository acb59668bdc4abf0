// Package tenants owns tenant billing state: the subscription a tenant is
// on and the entitlement settings derived from its plan. Reconciliation
// handlers consume the Store interface only; the Postgres and SQLite
// implementations apply every write as a single conditional UPDATE so
// concurrent webhook deliveries can never interleave a partial state.
package tenants
