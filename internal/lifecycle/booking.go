package lifecycle

import (
	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// BookingTrigger names a provider-driven booking transition.
type BookingTrigger string

const (
	BookingCheckoutInstant BookingTrigger = "checkout_instant"
	BookingCheckoutReview  BookingTrigger = "checkout_review"
	BookingCheckoutExpired BookingTrigger = "checkout_expired"
	BookingPaymentCanceled BookingTrigger = "payment_canceled"
	BookingFullRefund      BookingTrigger = "full_refund"
	BookingDisputeOpened   BookingTrigger = "dispute_opened"
	BookingDisputeWon      BookingTrigger = "dispute_won"
)

type bookingKey struct {
	trigger BookingTrigger
	from    models.BookingStatus
}

// bookingTable is the exact (trigger, current) -> next map. Pairs that are
// absent are rejected.
var bookingTable = map[bookingKey]models.BookingStatus{
	{BookingCheckoutInstant, models.BookingDraft}:           models.BookingApproved,
	{BookingCheckoutInstant, models.BookingPendingApproval}: models.BookingApproved,
	{BookingCheckoutInstant, models.BookingApproved}:        models.BookingApproved,

	{BookingCheckoutReview, models.BookingDraft}:           models.BookingPendingApproval,
	{BookingCheckoutReview, models.BookingPendingApproval}: models.BookingPendingApproval,

	{BookingCheckoutExpired, models.BookingDraft}: models.BookingCancelledBySystem,

	{BookingPaymentCanceled, models.BookingDraft}:           models.BookingCancelledBySystem,
	{BookingPaymentCanceled, models.BookingPendingApproval}: models.BookingCancelledBySystem,

	{BookingFullRefund, models.BookingPendingApproval}: models.BookingCancelledByHost,
	{BookingFullRefund, models.BookingApproved}:        models.BookingCancelledByHost,
	{BookingFullRefund, models.BookingActive}:          models.BookingCancelledByHost,
	{BookingFullRefund, models.BookingCompleted}:       models.BookingCancelledByHost,
	{BookingFullRefund, models.BookingCancelledByHost}: models.BookingCancelledByHost,

	{BookingDisputeOpened, models.BookingApproved}:  models.BookingDisputed,
	{BookingDisputeOpened, models.BookingActive}:    models.BookingDisputed,
	{BookingDisputeOpened, models.BookingCompleted}: models.BookingDisputed,
	{BookingDisputeOpened, models.BookingDisputed}:  models.BookingDisputed,

	{BookingDisputeWon, models.BookingDisputed}: models.BookingCompleted,
}

// NextBooking returns the booking status that trigger moves current to.
func NextBooking(trigger BookingTrigger, current models.BookingStatus) (models.BookingStatus, error) {
	next, ok := bookingTable[bookingKey{trigger, current}]
	if !ok {
		return current, notAllowed("booking", string(trigger), string(current))
	}
	return next, nil
}
