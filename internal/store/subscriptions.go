package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// GetSubscriptionByStripeID returns the subscription with the given provider id.
func (s *Store) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	query := `
SELECT
	id, organization_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
	status, plan_slug, max_listings, max_members, max_photos_per_listing, commission_bps,
	cancel_at_period_end, current_period_end, trial_end, canceled_at, created_at, updated_at
FROM subscriptions
WHERE stripe_subscription_id = $1
	`

	var (
		sub              models.Subscription
		currentPeriodEnd sql.NullTime
		trialEnd         sql.NullTime
		canceledAt       sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, stripeSubscriptionID).Scan(
		&sub.ID,
		&sub.OrganizationID,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.Status,
		&sub.Limits.PlanSlug,
		&sub.Limits.MaxListings,
		&sub.Limits.MaxMembers,
		&sub.Limits.MaxPhotosPerListing,
		&sub.Limits.CommissionBps,
		&sub.CancelAtPeriodEnd,
		&currentPeriodEnd,
		&trialEnd,
		&canceledAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", stripeSubscriptionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get subscription: %w", err)
	}

	sub.CurrentPeriodEnd = nullTimePtr(currentPeriodEnd)
	sub.TrialEnd = nullTimePtr(trialEnd)
	sub.CanceledAt = nullTimePtr(canceledAt)
	return &sub, nil
}

// CreateSubscription inserts a new subscription row with its plan snapshot.
// If a row with the same provider id already exists it returns ErrStaleWrite
// so the caller re-reads and takes the update path.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	query := `
INSERT INTO subscriptions (
	organization_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, status,
	plan_slug, max_listings, max_members, max_photos_per_listing, commission_bps,
	cancel_at_period_end, current_period_end, trial_end, canceled_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (stripe_subscription_id) DO NOTHING
RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		sub.OrganizationID,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.Status,
		sub.Limits.PlanSlug,
		sub.Limits.MaxListings,
		sub.Limits.MaxMembers,
		sub.Limits.MaxPhotosPerListing,
		sub.Limits.CommissionBps,
		sub.CancelAtPeriodEnd,
		sub.CurrentPeriodEnd,
		sub.TrialEnd,
		sub.CanceledAt,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("subscription %s already exists: %w", sub.StripeSubscriptionID, ErrStaleWrite)
	}
	if err != nil {
		return fmt.Errorf("store: create subscription: %w", err)
	}

	return nil
}

// ApplySubscriptionUpdate writes the update only if the row still has
// FromStatus. Nil fields keep their stored value.
func (s *Store) ApplySubscriptionUpdate(ctx context.Context, u models.SubscriptionUpdate) error {
	var (
		slug                                    sql.NullString
		maxListings, maxMembers, maxPhotos, bps sql.NullInt64
	)
	if u.Limits != nil {
		slug = sql.NullString{String: u.Limits.PlanSlug, Valid: true}
		maxListings = sql.NullInt64{Int64: int64(u.Limits.MaxListings), Valid: true}
		maxMembers = sql.NullInt64{Int64: int64(u.Limits.MaxMembers), Valid: true}
		maxPhotos = sql.NullInt64{Int64: int64(u.Limits.MaxPhotosPerListing), Valid: true}
		bps = sql.NullInt64{Int64: int64(u.Limits.CommissionBps), Valid: true}
	}

	query := `
UPDATE subscriptions
SET status = $1,
	stripe_price_id = COALESCE($2, stripe_price_id),
	plan_slug = COALESCE($3, plan_slug),
	max_listings = COALESCE($4, max_listings),
	max_members = COALESCE($5, max_members),
	max_photos_per_listing = COALESCE($6, max_photos_per_listing),
	commission_bps = COALESCE($7, commission_bps),
	cancel_at_period_end = COALESCE($8, cancel_at_period_end),
	current_period_end = COALESCE($9, current_period_end),
	trial_end = COALESCE($10, trial_end),
	canceled_at = COALESCE($11, canceled_at),
	updated_at = now()
WHERE id = $12 AND status = $13
	`

	res, err := s.db.ExecContext(ctx, query,
		u.ToStatus,
		u.StripePriceID,
		slug,
		maxListings,
		maxMembers,
		maxPhotos,
		bps,
		u.CancelAtPeriodEnd,
		u.CurrentPeriodEnd,
		u.TrialEnd,
		u.CanceledAt,
		u.SubscriptionID,
		u.FromStatus,
	)
	if err != nil {
		return fmt.Errorf("store: update subscription %d: %w", u.SubscriptionID, err)
	}
	if err := affectedOrStale(res); err != nil {
		return fmt.Errorf("subscription %d: %w", u.SubscriptionID, err)
	}
	return nil
}
