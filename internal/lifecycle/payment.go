package lifecycle

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// PaymentTrigger names a provider-driven payment-status transition.
type PaymentTrigger string

const (
	PaymentCheckoutPaid    PaymentTrigger = "checkout_paid"
	PaymentCheckoutExpired PaymentTrigger = "checkout_expired"
	PaymentAuthorized      PaymentTrigger = "authorized"
	PaymentSucceeded       PaymentTrigger = "succeeded"
	PaymentFailed          PaymentTrigger = "failed"
	PaymentCanceled        PaymentTrigger = "canceled"
	PaymentFullRefund      PaymentTrigger = "full_refund"
	PaymentPartialRefund   PaymentTrigger = "partial_refund"
	PaymentDisputeOpened   PaymentTrigger = "dispute_opened"
	PaymentDisputeWon      PaymentTrigger = "dispute_won"
	PaymentDisputeLost     PaymentTrigger = "dispute_lost"
)

type paymentRule struct {
	from mapset.Set[models.PaymentStatus]
	to   models.PaymentStatus
}

func paymentSources(s ...models.PaymentStatus) mapset.Set[models.PaymentStatus] {
	return mapset.NewSet(s...)
}

var paymentTable = map[PaymentTrigger]paymentRule{
	PaymentCheckoutPaid: {
		from: paymentSources(models.PaymentNotPaid, models.PaymentAuthorized, models.PaymentFailed),
		to:   models.PaymentPaid,
	},
	PaymentCheckoutExpired: {
		from: paymentSources(models.PaymentNotPaid),
		to:   models.PaymentFailed,
	},
	PaymentAuthorized: {
		from: paymentSources(models.PaymentNotPaid, models.PaymentFailed),
		to:   models.PaymentAuthorized,
	},
	PaymentSucceeded: {
		from: paymentSources(models.PaymentNotPaid, models.PaymentAuthorized, models.PaymentFailed),
		to:   models.PaymentPaid,
	},
	PaymentFailed: {
		from: paymentSources(models.PaymentNotPaid, models.PaymentAuthorized),
		to:   models.PaymentFailed,
	},
	PaymentCanceled: {
		from: paymentSources(models.PaymentNotPaid, models.PaymentAuthorized),
		to:   models.PaymentFailed,
	},
	PaymentFullRefund: {
		from: paymentSources(models.PaymentPaid, models.PaymentPartiallyRefunded),
		to:   models.PaymentRefunded,
	},
	PaymentPartialRefund: {
		from: paymentSources(models.PaymentPaid, models.PaymentPartiallyRefunded),
		to:   models.PaymentPartiallyRefunded,
	},
	PaymentDisputeOpened: {
		from: paymentSources(models.PaymentPaid, models.PaymentPartiallyRefunded),
		to:   models.PaymentDisputed,
	},
	PaymentDisputeWon: {
		from: paymentSources(models.PaymentDisputed),
		to:   models.PaymentPaid,
	},
	PaymentDisputeLost: {
		from: paymentSources(models.PaymentDisputed),
		to:   models.PaymentRefunded,
	},
}

// NextPayment returns the payment status that trigger moves current to. A
// transition onto the status the booking already has is always allowed.
func NextPayment(trigger PaymentTrigger, current models.PaymentStatus) (models.PaymentStatus, error) {
	rule, ok := paymentTable[trigger]
	if !ok {
		return current, notAllowed("payment", string(trigger), string(current))
	}
	if current == rule.to || rule.from.Contains(current) {
		return rule.to, nil
	}
	return current, notAllowed("payment", string(trigger), string(current))
}
