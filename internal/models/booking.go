package models

import "time"

// BookingStatus is the host/renter facing lifecycle of a reservation.
type BookingStatus string

const (
	BookingDraft             BookingStatus = "draft"
	BookingPendingApproval   BookingStatus = "pending_approval"
	BookingApproved          BookingStatus = "approved"
	BookingActive            BookingStatus = "active"
	BookingCompleted         BookingStatus = "completed"
	BookingCancelledByRenter BookingStatus = "cancelled_by_renter"
	BookingCancelledByHost   BookingStatus = "cancelled_by_host"
	BookingCancelledBySystem BookingStatus = "cancelled_by_system"
	BookingDisputed          BookingStatus = "disputed"
)

// IsCancelled reports whether the booking is in any cancelled variant.
func (s BookingStatus) IsCancelled() bool {
	switch s {
	case BookingCancelledByRenter, BookingCancelledByHost, BookingCancelledBySystem:
		return true
	}
	return false
}

// PaymentStatus tracks money movement for a booking. It is only ever changed
// by provider events.
type PaymentStatus string

const (
	PaymentNotPaid           PaymentStatus = "not_paid"
	PaymentAuthorized        PaymentStatus = "authorized"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentDisputed          PaymentStatus = "disputed"
)

// Booking is a single rental reservation of a listing for a date range.
type Booking struct {
	ID                      string        `json:"id"`
	ListingID               string        `json:"listing_id"`
	RenterID                string        `json:"renter_id"`
	OrganizationID          string        `json:"organization_id"`
	Status                  BookingStatus `json:"status"`
	PaymentStatus           PaymentStatus `json:"payment_status"`
	TotalPriceCents         int64         `json:"total_price_cents"`
	Currency                string        `json:"currency"`
	RefundedAmountCents     int64         `json:"refunded_amount_cents"`
	StripeCheckoutSessionID *string       `json:"stripe_checkout_session_id,omitempty"`
	StripePaymentIntentID   *string       `json:"stripe_payment_intent_id,omitempty"`
	StripeChargeID          *string       `json:"stripe_charge_id,omitempty"`
	StartsAt                time.Time     `json:"starts_at"`
	EndsAt                  time.Time     `json:"ends_at"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`

	// InstantBooking is read from the booking's listing.
	InstantBooking bool `json:"instant_booking"`
}

// BookingUpdate is a compare-and-swap write against a booking row. The row is
// only changed when both FromStatus and FromPayment still match.
type BookingUpdate struct {
	BookingID   string
	FromStatus  BookingStatus
	ToStatus    BookingStatus
	FromPayment PaymentStatus
	ToPayment   PaymentStatus

	// Optional provider identifiers / amounts, written when non-nil.
	PaymentIntentID     *string
	ChargeID            *string
	RefundedAmountCents *int64
}
