package webhook

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/fleetrent/backend/internal/lifecycle"
	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

func (r *Router) handleAccountUpdated(ctx context.Context, event stripe.Event) error {
	acct, err := decode[accountObject](event)
	if err != nil {
		return err
	}

	status := lifecycle.PayoutStatus(acct.ChargesEnabled, acct.PayoutsEnabled, acct.DetailsSubmitted)
	if err := r.deps.Organizations.SetPayoutStatusByConnectAccount(ctx, acct.ID, status); err != nil {
		return err
	}
	log.Info().Str("account_id", acct.ID).Str("payout_status", string(status)).Msg("connect account payout status updated")
	return nil
}

// handleAccountDeauthorized disables payouts for an account that disconnected
// the platform. The account id comes from the envelope, not data.object.
func (r *Router) handleAccountDeauthorized(ctx context.Context, event stripe.Event) error {
	if event.Account == "" {
		return fmt.Errorf("%w: %s carries no account", ErrMalformedEvent, event.ID)
	}
	if err := r.deps.Organizations.SetPayoutStatusByConnectAccount(ctx, event.Account, models.PayoutDisabled); err != nil {
		return err
	}
	log.Info().Str("account_id", event.Account).Msg("connect account deauthorized; payouts disabled")
	return nil
}
