package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/fleetrent/backend/internal/lifecycle"
	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/notify"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
)

const metaBookingID = "booking_id"

// bookingChange is the outcome of running a booking through the lifecycle
// tables for one event.
type bookingChange struct {
	status          models.BookingStatus
	payment         models.PaymentStatus
	paymentIntentID string
	chargeID        string
	refundedCents   *int64
}

// applyBooking writes change with a compare-and-swap against the status pair
// that was read. Nothing is written when the change is a no-op.
func (r *Router) applyBooking(ctx context.Context, b *models.Booking, c bookingChange) error {
	u := models.BookingUpdate{
		BookingID:           b.ID,
		FromStatus:          b.Status,
		ToStatus:            c.status,
		FromPayment:         b.PaymentStatus,
		ToPayment:           c.payment,
		RefundedAmountCents: c.refundedCents,
	}
	if c.paymentIntentID != "" && (b.StripePaymentIntentID == nil || *b.StripePaymentIntentID != c.paymentIntentID) {
		u.PaymentIntentID = &c.paymentIntentID
	}
	if c.chargeID != "" && (b.StripeChargeID == nil || *b.StripeChargeID != c.chargeID) {
		u.ChargeID = &c.chargeID
	}
	if c.refundedCents != nil && *c.refundedCents == b.RefundedAmountCents {
		u.RefundedAmountCents = nil
	}

	if u.FromStatus == u.ToStatus && u.FromPayment == u.ToPayment &&
		u.PaymentIntentID == nil && u.ChargeID == nil && u.RefundedAmountCents == nil {
		log.Debug().Str("booking_id", b.ID).Msg("booking already up to date")
		return nil
	}

	if err := r.deps.Bookings.ApplyBookingUpdate(ctx, u); err != nil {
		return err
	}

	log.Info().
		Str("booking_id", b.ID).
		Str("status_from", string(u.FromStatus)).
		Str("status_to", string(u.ToStatus)).
		Str("payment_from", string(u.FromPayment)).
		Str("payment_to", string(u.ToPayment)).
		Msg("booking updated")
	return nil
}

// bookingOrKeep is for events where only the payment side is mandatory: a
// booking move the table rejects leaves the booking status as it is.
func bookingOrKeep(trigger lifecycle.BookingTrigger, b *models.Booking) models.BookingStatus {
	next, err := lifecycle.NextBooking(trigger, b.Status)
	if err != nil {
		log.Debug().Str("booking_id", b.ID).Err(err).Msg("booking status kept")
		return b.Status
	}
	return next
}

// bookingForIntent finds the booking paid by a payment intent, falling back
// to the booking id carried in metadata.
func (r *Router) bookingForIntent(ctx context.Context, intentID string, metadata map[string]string) (*models.Booking, error) {
	if intentID != "" {
		b, err := r.deps.Bookings.GetBookingByPaymentIntent(ctx, intentID)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return b, err
		}
	}
	if id := metadata[metaBookingID]; id != "" {
		return r.deps.Bookings.GetBookingByID(ctx, id)
	}
	return nil, fmt.Errorf("booking for payment intent %q: %w", intentID, store.ErrNotFound)
}

func (r *Router) bookingForCheckout(ctx context.Context, s checkoutSession) (*models.Booking, error) {
	b, err := r.deps.Bookings.GetBookingByCheckoutSession(ctx, s.ID)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return b, err
	}
	if id := lo.CoalesceOrEmpty(s.Metadata[metaBookingID], s.ClientReferenceID); id != "" {
		return r.deps.Bookings.GetBookingByID(ctx, id)
	}
	return nil, err
}

func (r *Router) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	s, err := decode[checkoutSession](event)
	if err != nil {
		return err
	}

	switch s.Mode {
	case "subscription":
		return r.completeSubscriptionCheckout(ctx, s)
	case "payment":
	default:
		log.Debug().Str("session_id", s.ID).Str("mode", s.Mode).Msg("checkout mode not tracked")
		return nil
	}

	if s.PaymentStatus == "unpaid" {
		// Delayed payment method; async_payment_succeeded settles it.
		log.Info().Str("session_id", s.ID).Msg("checkout completed with payment pending")
		return nil
	}

	b, err := r.bookingForCheckout(ctx, s)
	if err != nil {
		return err
	}

	trigger := lifecycle.BookingCheckoutReview
	if b.InstantBooking {
		trigger = lifecycle.BookingCheckoutInstant
	}
	status, err := lifecycle.NextBooking(trigger, b.Status)
	if err != nil {
		return err
	}
	payment, err := lifecycle.NextPayment(lifecycle.PaymentCheckoutPaid, b.PaymentStatus)
	if err != nil {
		return err
	}

	return r.applyBooking(ctx, b, bookingChange{
		status:          status,
		payment:         payment,
		paymentIntentID: string(s.PaymentIntent),
	})
}

func (r *Router) handleCheckoutAsyncFailed(ctx context.Context, event stripe.Event) error {
	s, err := decode[checkoutSession](event)
	if err != nil {
		return err
	}
	if s.Mode != "payment" {
		return nil
	}

	b, err := r.bookingForCheckout(ctx, s)
	if err != nil {
		return err
	}
	payment, err := lifecycle.NextPayment(lifecycle.PaymentFailed, b.PaymentStatus)
	if err != nil {
		return err
	}
	status := bookingOrKeep(lifecycle.BookingPaymentCanceled, b)
	return r.applyBooking(ctx, b, bookingChange{status: status, payment: payment, paymentIntentID: string(s.PaymentIntent)})
}

func (r *Router) handleCheckoutExpired(ctx context.Context, event stripe.Event) error {
	s, err := decode[checkoutSession](event)
	if err != nil {
		return err
	}
	if s.Mode != "payment" {
		return nil
	}

	b, err := r.bookingForCheckout(ctx, s)
	if err != nil {
		return err
	}
	status, err := lifecycle.NextBooking(lifecycle.BookingCheckoutExpired, b.Status)
	if err != nil {
		return err
	}
	payment, err := lifecycle.NextPayment(lifecycle.PaymentCheckoutExpired, b.PaymentStatus)
	if err != nil {
		return err
	}
	return r.applyBooking(ctx, b, bookingChange{status: status, payment: payment})
}

// paymentOnly moves the payment status of the intent's booking and leaves
// the booking status alone.
func (r *Router) paymentOnly(ctx context.Context, event stripe.Event, trigger lifecycle.PaymentTrigger) error {
	pi, err := decode[paymentIntentObject](event)
	if err != nil {
		return err
	}
	b, err := r.bookingForIntent(ctx, pi.ID, pi.Metadata)
	if err != nil {
		return err
	}
	payment, err := lifecycle.NextPayment(trigger, b.PaymentStatus)
	if err != nil {
		return err
	}

	if pi.LastPaymentError != nil {
		log.Info().Str("booking_id", b.ID).Str("code", pi.LastPaymentError.Code).
			Str("reason", pi.LastPaymentError.Message).Msg("payment attempt failed")
	}
	return r.applyBooking(ctx, b, bookingChange{
		status:          b.Status,
		payment:         payment,
		paymentIntentID: pi.ID,
		chargeID:        string(pi.LatestCharge),
	})
}

func (r *Router) handlePaymentAuthorized(ctx context.Context, event stripe.Event) error {
	return r.paymentOnly(ctx, event, lifecycle.PaymentAuthorized)
}

func (r *Router) handlePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	return r.paymentOnly(ctx, event, lifecycle.PaymentSucceeded)
}

func (r *Router) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	return r.paymentOnly(ctx, event, lifecycle.PaymentFailed)
}

func (r *Router) handlePaymentCanceled(ctx context.Context, event stripe.Event) error {
	pi, err := decode[paymentIntentObject](event)
	if err != nil {
		return err
	}
	b, err := r.bookingForIntent(ctx, pi.ID, pi.Metadata)
	if err != nil {
		return err
	}
	payment, err := lifecycle.NextPayment(lifecycle.PaymentCanceled, b.PaymentStatus)
	if err != nil {
		return err
	}
	status := bookingOrKeep(lifecycle.BookingPaymentCanceled, b)

	log.Info().Str("booking_id", b.ID).Str("reason", pi.CancellationReason).Msg("payment intent canceled")
	return r.applyBooking(ctx, b, bookingChange{status: status, payment: payment, paymentIntentID: pi.ID})
}

// handleChargeRefunded compares the cumulative refunded amount with the
// booking total. A full refund also cancels the booking on the host's behalf.
func (r *Router) handleChargeRefunded(ctx context.Context, event stripe.Event) error {
	ch, err := decode[chargeObject](event)
	if err != nil {
		return err
	}
	b, err := r.bookingForIntent(ctx, string(ch.PaymentIntent), ch.Metadata)
	if err != nil {
		return err
	}

	change := bookingChange{
		status:          b.Status,
		paymentIntentID: string(ch.PaymentIntent),
		chargeID:        ch.ID,
		refundedCents:   &ch.AmountRefunded,
	}

	if ch.AmountRefunded >= b.TotalPriceCents {
		if change.payment, err = lifecycle.NextPayment(lifecycle.PaymentFullRefund, b.PaymentStatus); err != nil {
			return err
		}
		change.status = bookingOrKeep(lifecycle.BookingFullRefund, b)
	} else {
		if change.payment, err = lifecycle.NextPayment(lifecycle.PaymentPartialRefund, b.PaymentStatus); err != nil {
			return err
		}
	}

	return r.applyBooking(ctx, b, change)
}

func (r *Router) bookingForDispute(ctx context.Context, d disputeObject) (*models.Booking, error) {
	if d.PaymentIntent == "" {
		return nil, fmt.Errorf("%w: dispute %s has no payment intent", ErrMalformedEvent, d.ID)
	}
	return r.deps.Bookings.GetBookingByPaymentIntent(ctx, string(d.PaymentIntent))
}

func (r *Router) handleDisputeCreated(ctx context.Context, event stripe.Event) error {
	d, err := decode[disputeObject](event)
	if err != nil {
		return err
	}
	b, err := r.bookingForDispute(ctx, d)
	if err != nil {
		return err
	}

	payment, err := lifecycle.NextPayment(lifecycle.PaymentDisputeOpened, b.PaymentStatus)
	if err != nil {
		return err
	}
	status := bookingOrKeep(lifecycle.BookingDisputeOpened, b)
	if err := r.applyBooking(ctx, b, bookingChange{status: status, payment: payment, chargeID: string(d.Charge)}); err != nil {
		return err
	}

	r.notify(ctx, notify.Notification{
		Kind:           notify.KindBookingDisputed,
		OrganizationID: b.OrganizationID,
		Subject:        "A renter disputed a booking payment",
		Message:        fmt.Sprintf("Booking %s was disputed (%s).", b.ID, d.Reason),
		Data: map[string]string{
			"booking_id": b.ID,
			"dispute_id": d.ID,
			"reason":     d.Reason,
			"amount":     fmt.Sprintf("%d", d.Amount),
		},
	})
	return nil
}

// handleDisputeClosed settles a dispute. A won (or inquiry-only) dispute
// restores payment and completes the booking; a lost one counts as refunded
// and the booking stays disputed.
func (r *Router) handleDisputeClosed(ctx context.Context, event stripe.Event) error {
	d, err := decode[disputeObject](event)
	if err != nil {
		return err
	}
	b, err := r.bookingForDispute(ctx, d)
	if err != nil {
		return err
	}

	change := bookingChange{status: b.Status}
	switch d.Status {
	case "won", "warning_closed":
		if change.payment, err = lifecycle.NextPayment(lifecycle.PaymentDisputeWon, b.PaymentStatus); err != nil {
			return err
		}
		change.status = bookingOrKeep(lifecycle.BookingDisputeWon, b)
	case "lost":
		if change.payment, err = lifecycle.NextPayment(lifecycle.PaymentDisputeLost, b.PaymentStatus); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: dispute %s closed with status %q", ErrMalformedEvent, d.ID, d.Status)
	}

	return r.applyBooking(ctx, b, change)
}

// notify sends n and only logs failures.
func (r *Router) notify(ctx context.Context, n notify.Notification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = r.deps.Now().UTC()
	}
	if err := r.deps.Notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Str("kind", n.Kind).Str("org_id", n.OrganizationID).Msg("notification failed")
	}
}
