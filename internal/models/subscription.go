package models

import "time"

// SubscriptionStatus mirrors the provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionPaused     SubscriptionStatus = "paused"
	SubscriptionUnpaid     SubscriptionStatus = "unpaid"
)

// PlanLimits is the entitlement snapshot copied onto a subscription so that
// request-time checks never join against plans.
type PlanLimits struct {
	PlanSlug            string `json:"plan_slug"`
	MaxListings         int    `json:"max_listings"`
	MaxMembers          int    `json:"max_members"`
	MaxPhotosPerListing int    `json:"max_photos_per_listing"`
	CommissionBps       int    `json:"commission_bps"`
}

type Subscription struct {
	ID                   int64              `json:"id"`
	OrganizationID       string             `json:"organization_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripePriceID        string             `json:"stripe_price_id"`
	Status               SubscriptionStatus `json:"status"`
	Limits               PlanLimits         `json:"limits"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// SubscriptionUpdate is a compare-and-swap write against a subscription row.
// Nil pointer fields are left unchanged.
type SubscriptionUpdate struct {
	SubscriptionID int64
	FromStatus     SubscriptionStatus
	ToStatus       SubscriptionStatus

	StripePriceID     *string
	Limits            *PlanLimits
	CancelAtPeriodEnd *bool
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
	CanceledAt        *time.Time
}
