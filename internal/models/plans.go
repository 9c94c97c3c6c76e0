package models

import "time"

// Plan is a subscription tier hosts can buy. Limits are copied onto the
// subscription when it is created or its price changes.
type Plan struct {
	ID                  int64     `json:"id"`
	Slug                string    `json:"slug"`
	Name                string    `json:"name"`
	StripePriceID       string    `json:"stripe_price_id"`
	MaxListings         int       `json:"max_listings"`
	MaxMembers          int       `json:"max_members"`
	MaxPhotosPerListing int       `json:"max_photos_per_listing"`
	CommissionBps       int       `json:"commission_bps"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Limits returns the entitlement snapshot for this plan.
func (p Plan) Limits() PlanLimits {
	return PlanLimits{
		PlanSlug:            p.Slug,
		MaxListings:         p.MaxListings,
		MaxMembers:          p.MaxMembers,
		MaxPhotosPerListing: p.MaxPhotosPerListing,
		CommissionBps:       p.CommissionBps,
	}
}
