package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// Minimal views of the data.object payloads this service reads. Only the
// fields the handlers use are decoded.

// objectID accepts either a bare id or an expanded object carrying "id".
type objectID string

func (o *objectID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = objectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*o = objectID(obj.ID)
	return nil
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          objectID          `json:"customer"`
	Subscription      objectID          `json:"subscription"`
	PaymentIntent     objectID          `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                string            `json:"id"`
	Customer          objectID          `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	TrialEnd          int64             `json:"trial_end"`
	CanceledAt        int64             `json:"canceled_at"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscriptionObject) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// periodEnd prefers the top-level field and falls back to the first item,
// where newer API versions carry it.
func (s subscriptionObject) periodEnd() int64 {
	if s.CurrentPeriodEnd != 0 || len(s.Items.Data) == 0 {
		return s.CurrentPeriodEnd
	}
	return s.Items.Data[0].CurrentPeriodEnd
}

type invoiceObject struct {
	ID                 string   `json:"id"`
	Customer           objectID `json:"customer"`
	Subscription       objectID `json:"subscription"`
	AttemptCount       int      `json:"attempt_count"`
	AmountDue          int64    `json:"amount_due"`
	Currency           string   `json:"currency"`
	NextPaymentAttempt int64    `json:"next_payment_attempt"`
	HostedInvoiceURL   string   `json:"hosted_invoice_url"`
	Parent             *struct {
		SubscriptionDetails *struct {
			Subscription objectID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (inv invoiceObject) subscriptionID() string {
	if inv.Subscription != "" {
		return string(inv.Subscription)
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return string(inv.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (inv invoiceObject) periodEnd() int64 {
	var end int64
	for _, l := range inv.Lines.Data {
		if l.Period.End > end {
			end = l.Period.End
		}
	}
	return end
}

type paymentIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountCapturable int64             `json:"amount_capturable"`
	Status           string            `json:"status"`
	LatestCharge     objectID          `json:"latest_charge"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	CancellationReason string `json:"cancellation_reason"`
}

type chargeObject struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Refunded       bool              `json:"refunded"`
	PaymentIntent  objectID          `json:"payment_intent"`
	Metadata       map[string]string `json:"metadata"`
}

type disputeObject struct {
	ID            string   `json:"id"`
	Amount        int64    `json:"amount"`
	Charge        objectID `json:"charge"`
	PaymentIntent objectID `json:"payment_intent"`
	Reason        string   `json:"reason"`
	Status        string   `json:"status"`
}

type accountObject struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// decode unmarshals the event's data.object into T.
func decode[T any](event stripe.Event) (T, error) {
	var v T
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return v, fmt.Errorf("%w: %s carries no data.object", ErrMalformedEvent, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, &v); err != nil {
		return v, fmt.Errorf("%w: decode %s: %v", ErrMalformedEvent, event.Type, err)
	}
	return v, nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
