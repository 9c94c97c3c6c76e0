package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

const organizationColumns = `id, name, owner_user_id, stripe_customer_id, stripe_connect_account_id,
       payout_status, trial_ends_at, created_at, updated_at`

// GetOrganization returns the organization with the given id.
func (s *Store) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	return scanOrganization(row, id)
}

// GetOrganizationByCustomer returns the organization billed under the given
// provider customer id.
func (s *Store) GetOrganizationByCustomer(ctx context.Context, customerID string) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE stripe_customer_id = $1`, customerID)
	return scanOrganization(row, customerID)
}

func scanOrganization(row rowScanner, key string) (*models.Organization, error) {
	var (
		org        models.Organization
		customerID sql.NullString
		accountID  sql.NullString
		trialEnds  sql.NullTime
	)

	err := row.Scan(
		&org.ID, &org.Name, &org.OwnerUserID, &customerID, &accountID,
		&org.PayoutStatus, &trialEnds, &org.CreatedAt, &org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get organization: %w", err)
	}

	org.StripeCustomerID = nullStringPtr(customerID)
	org.StripeConnectAccountID = nullStringPtr(accountID)
	org.TrialEndsAt = nullTimePtr(trialEnds)
	return &org, nil
}

// CreateOrganization inserts a new organization. An id is generated when the
// caller leaves it empty.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	if org.PayoutStatus == "" {
		org.PayoutStatus = models.PayoutDisabled
	}

	err := s.db.QueryRowContext(ctx, `
INSERT INTO organizations (id, name, owner_user_id, stripe_customer_id, payout_status, trial_ends_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`,
		org.ID,
		org.Name,
		org.OwnerUserID,
		org.StripeCustomerID,
		org.PayoutStatus,
		org.TrialEndsAt,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create organization: %w", err)
	}
	return nil
}

// SetOrganizationCustomer records the provider customer id on an organization
// that has none yet.
func (s *Store) SetOrganizationCustomer(ctx context.Context, orgID, customerID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE organizations
SET stripe_customer_id = $2, updated_at = now()
WHERE id = $1 AND (stripe_customer_id IS NULL OR stripe_customer_id = $2)`, orgID, customerID)
	if err != nil {
		return fmt.Errorf("store: set organization customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("organization %s with customer %s: %w", orgID, customerID, ErrNotFound)
	}
	return nil
}

// SetOrganizationTrial records when the organization's trial ends. A nil
// trialEnd clears the trial bookkeeping.
func (s *Store) SetOrganizationTrial(ctx context.Context, orgID string, trialEnd *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE organizations SET trial_ends_at = $2, updated_at = now() WHERE id = $1`, orgID, trialEnd)
	if err != nil {
		return fmt.Errorf("store: set organization trial: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	return nil
}

// SetPayoutStatusByConnectAccount writes the payout status of the
// organization owning the given connected account.
func (s *Store) SetPayoutStatusByConnectAccount(ctx context.Context, accountID string, status models.PayoutStatus) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE organizations
SET payout_status = $2, updated_at = now()
WHERE stripe_connect_account_id = $1`, accountID, status)
	if err != nil {
		return fmt.Errorf("store: set payout status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connect account %s: %w", accountID, ErrNotFound)
	}
	return nil
}
