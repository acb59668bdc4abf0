package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	plan TEXT NOT NULL DEFAULT 'free',
	status TEXT NOT NULL DEFAULT 'cancelled',
	external_customer_id TEXT,
	external_subscription_id TEXT,
	current_period_start TIMESTAMP,
	current_period_end TIMESTAMP,
	subscription_event_at TIMESTAMP,
	max_users INTEGER NOT NULL DEFAULT 5,
	max_storage_bytes INTEGER NOT NULL DEFAULT 1073741824,
	features TEXT NOT NULL DEFAULT '["basic"]',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS tenants_external_customer_id_key
	ON tenants (external_customer_id) WHERE external_customer_id IS NOT NULL;
`

// SQLiteStore implements Store using SQLite. It exists for local development
// and single-node deployments; the semantics match PostgresStore, with
// features stored as a JSON array instead of a native array column.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(path string, timeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &SQLiteStore{db: db, timeout: timeout}, nil
}

// Migrate creates the tenants table and uniqueness index.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to migrate tenants schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// GetByID retrieves a tenant by primary key.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = ?`
	tenant, err := scanSQLiteTenant(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// FindByExternalCustomerID returns tenants bound to a billing customer id,
// oldest first.
func (s *SQLiteStore) FindByExternalCustomerID(ctx context.Context, customerID string) ([]*Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + tenantColumns + ` FROM tenants
		WHERE external_customer_id = ?
		ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenants by customer id: %w", err)
	}
	defer rows.Close()

	var result []*Tenant
	for rows.Next() {
		tenant, err := scanSQLiteTenant(rows)
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

// Update applies a partial update as a single conditional UPDATE, with the
// same COALESCE customer-id assignment and event-time guard as the
// Postgres implementation.
func (s *SQLiteStore) Update(ctx context.Context, id string, fields UpdateFields) error {
	if fields.IsEmpty() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	set := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []interface{}

	add := func(expr string, value interface{}) {
		set = append(set, expr)
		args = append(args, value)
	}

	if fields.Plan != nil {
		add("plan = ?", *fields.Plan)
	}
	if fields.Status != nil {
		add("status = ?", string(*fields.Status))
	}
	if fields.ExternalCustomerID != nil {
		add("external_customer_id = COALESCE(external_customer_id, ?)", *fields.ExternalCustomerID)
	}
	if fields.ClearExternalSubscriptionID {
		set = append(set, "external_subscription_id = NULL")
	} else if fields.ExternalSubscriptionID != nil {
		add("external_subscription_id = ?", *fields.ExternalSubscriptionID)
	}
	if fields.CurrentPeriodStart != nil {
		add("current_period_start = ?", fields.CurrentPeriodStart.UTC())
	}
	if fields.CurrentPeriodEnd != nil {
		add("current_period_end = ?", fields.CurrentPeriodEnd.UTC())
	}
	if fields.Settings != nil {
		featuresJSON, err := json.Marshal(fields.Settings.Features)
		if err != nil {
			return fmt.Errorf("failed to marshal features: %w", err)
		}
		add("max_users = ?", fields.Settings.MaxUsers)
		add("max_storage_bytes = ?", fields.Settings.MaxStorageBytes)
		add("features = ?", string(featuresJSON))
	}

	guard := ""
	if fields.EventAt != nil {
		add("subscription_event_at = ?", fields.EventAt.UTC())
		guard = " AND (subscription_event_at IS NULL OR subscription_event_at <= ?)"
	}

	args = append(args, id)
	if fields.EventAt != nil {
		args = append(args, fields.EventAt.UTC())
	}

	query := "UPDATE tenants SET " + strings.Join(set, ", ") + " WHERE id = ?" + guard
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

func (s *SQLiteStore) classifyNoOp(ctx context.Context, id string, fields UpdateFields) error {
	if fields.EventAt == nil {
		return ErrTenantNotFound
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrTenantNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return ErrStaleEvent
}

func scanSQLiteTenant(row rowScanner) (*Tenant, error) {
	t := &Tenant{}
	var (
		customerID sql.NullString
		subID      sql.NullString
		start      sql.NullTime
		end        sql.NullTime
		eventAt    sql.NullTime
		features   string
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
	if err := json.Unmarshal([]byte(features), &t.Settings.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}

	return t, nil
}
