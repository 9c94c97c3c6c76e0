package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

const bookingColumns = `
	b.id, b.listing_id, b.renter_id, b.organization_id, b.status, b.payment_status,
	b.total_price_cents, b.currency, b.refunded_amount_cents,
	b.stripe_checkout_session_id, b.stripe_payment_intent_id, b.stripe_charge_id,
	b.starts_at, b.ends_at, b.created_at, b.updated_at, l.instant_booking
FROM bookings b
JOIN listings l ON l.id = b.listing_id`

// GetBookingByID returns the booking with the given id.
func (s *Store) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	return s.getBooking(ctx, `SELECT`+bookingColumns+` WHERE b.id = $1`, id)
}

// GetBookingByCheckoutSession returns the booking paid through the given
// checkout session.
func (s *Store) GetBookingByCheckoutSession(ctx context.Context, sessionID string) (*models.Booking, error) {
	return s.getBooking(ctx, `SELECT`+bookingColumns+` WHERE b.stripe_checkout_session_id = $1`, sessionID)
}

// GetBookingByPaymentIntent returns the booking paid through the given
// payment intent.
func (s *Store) GetBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Booking, error) {
	return s.getBooking(ctx, `SELECT`+bookingColumns+` WHERE b.stripe_payment_intent_id = $1`, paymentIntentID)
}

func (s *Store) getBooking(ctx context.Context, query string, arg string) (*models.Booking, error) {
	var (
		b         models.Booking
		sessionID sql.NullString
		intentID  sql.NullString
		chargeID  sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&b.ID, &b.ListingID, &b.RenterID, &b.OrganizationID, &b.Status, &b.PaymentStatus,
		&b.TotalPriceCents, &b.Currency, &b.RefundedAmountCents,
		&sessionID, &intentID, &chargeID,
		&b.StartsAt, &b.EndsAt, &b.CreatedAt, &b.UpdatedAt, &b.InstantBooking,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get booking: %w", err)
	}

	b.StripeCheckoutSessionID = nullStringPtr(sessionID)
	b.StripePaymentIntentID = nullStringPtr(intentID)
	b.StripeChargeID = nullStringPtr(chargeID)
	return &b, nil
}

// ApplyBookingUpdate writes the new status pair only if the row still holds
// the pair that was read. It returns ErrStaleWrite otherwise.
func (s *Store) ApplyBookingUpdate(ctx context.Context, u models.BookingUpdate) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE bookings
SET status = $1,
    payment_status = $2,
    stripe_payment_intent_id = COALESCE($3, stripe_payment_intent_id),
    stripe_charge_id = COALESCE($4, stripe_charge_id),
    refunded_amount_cents = COALESCE($5, refunded_amount_cents),
    updated_at = NOW()
WHERE id = $6 AND status = $7 AND payment_status = $8`,
		u.ToStatus,
		u.ToPayment,
		u.PaymentIntentID,
		u.ChargeID,
		u.RefundedAmountCents,
		u.BookingID,
		u.FromStatus,
		u.FromPayment,
	)
	if err != nil {
		return fmt.Errorf("store: update booking %s: %w", u.BookingID, err)
	}
	if err := affectedOrStale(res); err != nil {
		return fmt.Errorf("booking %s: %w", u.BookingID, err)
	}
	return nil
}
