package models

import "time"

// PayoutStatus is the tri-state payout capability of a host organization's
// connected account.
type PayoutStatus string

const (
	PayoutEnabled    PayoutStatus = "enabled"
	PayoutRestricted PayoutStatus = "restricted"
	PayoutDisabled   PayoutStatus = "disabled"
)

// Organization is the tenant that owns listings, bookings and a subscription.
type Organization struct {
	ID                     string       `json:"id"`
	Name                   string       `json:"name"`
	OwnerUserID            string       `json:"owner_user_id"`
	StripeCustomerID       *string      `json:"stripe_customer_id,omitempty"`
	StripeConnectAccountID *string      `json:"stripe_connect_account_id,omitempty"`
	PayoutStatus           PayoutStatus `json:"payout_status"`
	TrialEndsAt            *time.Time   `json:"trial_ends_at,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}
