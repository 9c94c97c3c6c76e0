package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// ErrPlanNotFound is returned when no plan matches a price id.
var ErrPlanNotFound = fmt.Errorf("plan %w", ErrNotFound)

// PlanStore provides read access to subscription plans.
type PlanStore struct {
	db *sql.DB
}

// NewPlanStore creates a new PlanStore instance
func NewPlanStore(db *sql.DB) (*PlanStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &PlanStore{db: db}, nil
}

const planColumns = `id, slug, name, stripe_price_id, max_listings, max_members,
	max_photos_per_listing, commission_bps, is_active, created_at, updated_at`

// ListPlans returns all active plans ordered by listing allowance.
func (s *PlanStore) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+`
		FROM plans WHERE is_active = TRUE ORDER BY max_listings ASC, slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := scanPlan(rows, &p); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

// GetPlanByPriceID returns the plan sold under the given provider price id.
// Inactive plans are returned too so existing subscribers keep their limits.
func (s *PlanStore) GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE stripe_price_id = $1`, priceID)

	var p models.Plan
	if err := scanPlan(row, &p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("price %s: %w", priceID, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("get plan by price: %w", err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner, p *models.Plan) error {
	return row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.StripePriceID,
		&p.MaxListings, &p.MaxMembers, &p.MaxPhotosPerListing, &p.CommissionBps,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
}
