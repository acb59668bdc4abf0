package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/tollgate/pkg/plans"
)

// Sweeper runs periodic maintenance against the tenants table. It operates
// on the raw database handle rather than the Store interface because its
// updates are bulk, time-based sweeps rather than per-event reconciliation.
type Sweeper struct {
	db *sql.DB
}

// NewSweeper creates a new sweeper.
func NewSweeper(db *sql.DB) *Sweeper {
	return &Sweeper{db: db}
}

// DowngradeLapsed moves tenants that have been past due beyond the grace
// window down to the free tier. The billing provider normally cancels such
// subscriptions itself; this sweep catches tenants whose cancellation
// webhook never arrived. Returns the number of tenants downgraded.
func (s *Sweeper) DowngradeLapsed(ctx context.Context, grace time.Duration) (int64, error) {
	free := plans.FreeTier()

	query := `
		UPDATE tenants SET
			plan = 'free',
			status = 'cancelled',
			external_subscription_id = NULL,
			max_users = $1,
			max_storage_bytes = $2,
			features = $3,
			updated_at = NOW()
		WHERE status = 'past_due'
		  AND current_period_end IS NOT NULL
		  AND current_period_end < NOW() - $4::interval`

	result, err := s.db.ExecContext(ctx, query,
		free.MaxUsers, free.MaxStorageBytes, pq.Array(free.Features), intervalArg(grace))
	if err != nil {
		return 0, fmt.Errorf("failed to downgrade lapsed tenants: %w", err)
	}
	return result.RowsAffected()
}

// PrunePeriodData clears billing period columns for tenants that have been
// cancelled longer than the retention window. The period boundaries are only
// meaningful while a subscription can still renew, so aged rows keep just
// the plan, status and settings.
func (s *Sweeper) PrunePeriodData(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		UPDATE tenants SET
			current_period_start = NULL,
			current_period_end = NULL,
			updated_at = NOW()
		WHERE status = 'cancelled'
		  AND current_period_end IS NOT NULL
		  AND current_period_end < NOW() - $1::interval`

	result, err := s.db.ExecContext(ctx, query, intervalArg(retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune period data: %w", err)
	}
	return result.RowsAffected()
}

// CountByStatus reports how many tenants sit in each subscription status.
func (s *Sweeper) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tenants GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tenants by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var status Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}
