package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	plan TEXT NOT NULL DEFAULT 'free',
	status TEXT NOT NULL DEFAULT 'cancelled',
	external_customer_id TEXT,
	external_subscription_id TEXT,
	current_period_start TIMESTAMPTZ,
	current_period_end TIMESTAMPTZ,
	subscription_event_at TIMESTAMPTZ,
	max_users INTEGER NOT NULL DEFAULT 5,
	max_storage_bytes BIGINT NOT NULL DEFAULT 1073741824,
	features TEXT[] NOT NULL DEFAULT '{basic}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS tenants_external_customer_id_key
	ON tenants (external_customer_id) WHERE external_customer_id IS NOT NULL;
`

const tenantColumns = `id, name, plan, status, external_customer_id, external_subscription_id,
	       current_period_start, current_period_end, subscription_event_at,
	       max_users, max_storage_bytes, features, created_at, updated_at`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgresStore creates a new PostgresStore. Every query runs under the
// given timeout so a slow database surfaces as a retryable failure instead
// of a hung delivery.
func NewPostgresStore(db *sql.DB, timeout time.Duration) *PostgresStore {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// Migrate creates the tenants table and its uniqueness index. The partial
// unique index enforces at write time that a billing customer id binds to
// at most one tenant.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate tenants schema: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by primary key.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant, err := scanTenant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// FindByExternalCustomerID returns tenants bound to a billing customer id,
// oldest first so callers that must pick one candidate do so
// deterministically.
func (s *PostgresStore) FindByExternalCustomerID(ctx context.Context, customerID string) ([]*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + tenantColumns + ` FROM tenants
		WHERE external_customer_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenants by customer id: %w", err)
	}
	defer rows.Close()

	var result []*Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		result = append(result, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return result, nil
}

// Update applies a partial update as a single conditional UPDATE. The
// customer id is written with COALESCE so an assigned value is never
// overwritten, and the event-time guard discards writes older than what
// the record already reflects.
func (s *PostgresStore) Update(ctx context.Context, id string, fields UpdateFields) error {
	if fields.IsEmpty() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	set := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(expr string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	if fields.Plan != nil {
		add("plan = $%d", *fields.Plan)
	}
	if fields.Status != nil {
		add("status = $%d", string(*fields.Status))
	}
	if fields.ExternalCustomerID != nil {
		add("external_customer_id = COALESCE(external_customer_id, $%d)", *fields.ExternalCustomerID)
	}
	if fields.ClearExternalSubscriptionID {
		set = append(set, "external_subscription_id = NULL")
	} else if fields.ExternalSubscriptionID != nil {
		add("external_subscription_id = $%d", *fields.ExternalSubscriptionID)
	}
	if fields.CurrentPeriodStart != nil {
		add("current_period_start = $%d", fields.CurrentPeriodStart.UTC())
	}
	if fields.CurrentPeriodEnd != nil {
		add("current_period_end = $%d", fields.CurrentPeriodEnd.UTC())
	}
	if fields.Settings != nil {
		add("max_users = $%d", fields.Settings.MaxUsers)
		add("max_storage_bytes = $%d", fields.Settings.MaxStorageBytes)
		add("features = $%d", pq.Array(fields.Settings.Features))
	}

	guard := ""
	if fields.EventAt != nil {
		args = append(args, fields.EventAt.UTC())
		idx := len(args)
		set = append(set, fmt.Sprintf("subscription_event_at = $%d", idx))
		guard = fmt.Sprintf(" AND (subscription_event_at IS NULL OR subscription_event_at <= $%d)", idx)
	}

	query := "UPDATE tenants SET " + strings.Join(set, ", ") + " WHERE id = $1" + guard
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.classifyNoOp(ctx, id, fields)
	}

	return nil
}

// classifyNoOp distinguishes a missing tenant from a write rejected by the
// event-time guard. The probe is diagnostic only; the update itself already
// happened (or not) atomically.
func (s *PostgresStore) classifyNoOp(ctx context.Context, id string, fields UpdateFields) error {
	if fields.EventAt == nil {
		return ErrTenantNotFound
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = $1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrTenantNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return ErrStaleEvent
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var (
		customerID sql.NullString
		subID      sql.NullString
		start      sql.NullTime
		end        sql.NullTime
		eventAt    sql.NullTime
		features   pq.StringArray
	)

	err := row.Scan(
		&t.ID, &t.Name, &t.Subscription.Plan, &t.Subscription.Status,
		&customerID, &subID, &start, &end, &eventAt,
		&t.Settings.MaxUsers, &t.Settings.MaxStorageBytes, &features,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if customerID.Valid {
		t.Subscription.ExternalCustomerID = customerID.String
	}
	if subID.Valid {
		t.Subscription.ExternalSubscriptionID = subID.String
	}
	if start.Valid {
		v := start.Time.UTC()
		t.Subscription.CurrentPeriodStart = &v
	}
	if end.Valid {
		v := end.Time.UTC()
		t.Subscription.CurrentPeriodEnd = &v
	}
	if eventAt.Valid {
		v := eventAt.Time.UTC()
		t.Subscription.EventAt = &v
	}
	t.Settings.Features = []string(features)

	return t, nil
}
