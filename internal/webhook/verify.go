package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Verify checks the Stripe-Signature header against the configured secret and
// tolerance, then decodes the envelope. Signature problems of any kind yield
// ErrInvalidSignature; a verified but undecodable body yields ErrMalformedEvent.
func (r *Router) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, r.cfg.Secret, r.cfg.Tolerance); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Type == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return event, nil
}
