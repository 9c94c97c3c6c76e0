// Package notify delivers owner/host notifications raised by webhook
// handlers to the email service.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Routing keys, one per notification kind.
const (
	KindInvoicePaymentFailed = "subscription.payment_failed"
	KindTrialWillEnd         = "subscription.trial_will_end"
	KindBookingDisputed      = "booking.disputed"
)

// Notification is the message handed to the email service.
type Notification struct {
	Kind           string            `json:"kind"`
	OrganizationID string            `json:"organization_id"`
	Subject        string            `json:"subject"`
	Message        string            `json:"message"`
	Data           map[string]string `json:"data,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// Notifier sends notifications. Callers treat errors as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It is used when no broker is
// configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Info().
		Str("kind", n.Kind).
		Str("org_id", n.OrganizationID).
		Str("subject", n.Subject).
		Msg(n.Message)
	return nil
}
