package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/webhook"
)

// MaxWebhookBody caps the inbound Stripe payload.
const MaxWebhookBody = 64 << 10

// WebhookProcessor verifies and handles one Stripe delivery.
// *webhook.Router implements it.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (webhook.Result, error)
}

// StripeWebhook is the inbound endpoint for Stripe events. Bad signatures
// and malformed bodies get 400, failures to record the event get 500 so that
// Stripe redelivers, and everything else is acknowledged with 200.
func StripeWebhook(p WebhookProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBody+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		if len(body) > MaxWebhookBody {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}

		res, err := p.Handle(r.Context(), body, r.Header.Get("Stripe-Signature"))
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			log.Warn().Err(err).Msg("Stripe webhook rejected")
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		case errors.Is(err, webhook.ErrMalformedEvent):
			log.Warn().Err(err).Msg("Stripe webhook rejected")
			writeError(w, http.StatusBadRequest, "invalid webhook payload")
			return
		case err != nil:
			log.Error().Err(err).Str("event_id", res.EventID).Msg("Stripe webhook could not be recorded")
			writeError(w, http.StatusInternalServerError, "failed to record event")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"received":   true,
			"event_id":   res.EventID,
			"event_type": res.EventType,
			"status":     res.Outcome,
		})
	}
}
