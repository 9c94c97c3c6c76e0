package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/fleetrent/backend/internal/lifecycle"
	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/notify"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
)

const (
	metaOrganizationID   = "organization_id"
	metaOrganizationName = "organization_name"
	metaOwnerUserID      = "owner_user_id"
	metaPlanPriceID      = "plan_price_id"
)

// errOrganizationPending means a subscription event arrived before the
// checkout that creates its organization. It is retried.
var errOrganizationPending = errors.New("webhook: organization for subscription not created yet")

// resolveOrganization finds the owning organization by explicit id or by the
// billing customer.
func (r *Router) resolveOrganization(ctx context.Context, orgID, customerID string) (*models.Organization, error) {
	if orgID != "" {
		return r.deps.Organizations.GetOrganization(ctx, orgID)
	}
	if customerID != "" {
		return r.deps.Organizations.GetOrganizationByCustomer(ctx, customerID)
	}
	return nil, fmt.Errorf("organization: %w", store.ErrNotFound)
}

// completeSubscriptionCheckout handles the first paid subscription checkout.
// It creates the owning organization when the session does not name one and
// records the subscription with its plan snapshot.
func (r *Router) completeSubscriptionCheckout(ctx context.Context, s checkoutSession) error {
	customerID := string(s.Customer)
	subID := string(s.Subscription)
	if subID == "" {
		return fmt.Errorf("%w: subscription checkout %s has no subscription", ErrMalformedEvent, s.ID)
	}

	org, err := r.resolveOrganization(ctx, s.Metadata[metaOrganizationID], customerID)
	switch {
	case err == nil:
		if org.StripeCustomerID == nil && customerID != "" {
			if err := r.deps.Organizations.SetOrganizationCustomer(ctx, org.ID, customerID); err != nil {
				return err
			}
		}
	case errors.Is(err, store.ErrNotFound) && s.Metadata[metaOrganizationID] == "":
		owner := lo.CoalesceOrEmpty(s.Metadata[metaOwnerUserID], s.ClientReferenceID)
		if owner == "" {
			return fmt.Errorf("%w: checkout %s names no owner for the new organization", ErrMalformedEvent, s.ID)
		}
		// The customer id is how a replay finds the organization created here.
		if customerID == "" {
			return fmt.Errorf("%w: checkout %s has no customer for the new organization", ErrMalformedEvent, s.ID)
		}
		org = &models.Organization{
			Name:             lo.CoalesceOrEmpty(s.Metadata[metaOrganizationName], "New organization"),
			OwnerUserID:      owner,
			StripeCustomerID: &customerID,
			PayoutStatus:     models.PayoutDisabled,
		}
		if err := r.deps.Organizations.CreateOrganization(ctx, org); err != nil {
			return err
		}
		log.Info().Str("org_id", org.ID).Str("owner", owner).Msg("organization created from subscription checkout")
	default:
		return err
	}

	if _, err := r.deps.Subscriptions.GetSubscriptionByStripeID(ctx, subID); err == nil {
		// customer.subscription.created got here first.
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	plan, err := r.deps.Plans.GetPlanByPriceID(ctx, s.Metadata[metaPlanPriceID])
	if err != nil {
		return err
	}

	status := models.SubscriptionActive
	switch s.PaymentStatus {
	case "no_payment_required":
		status = models.SubscriptionTrialing
	case "unpaid":
		status = models.SubscriptionIncomplete
	}

	sub := &models.Subscription{
		OrganizationID:       org.ID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subID,
		StripePriceID:        plan.StripePriceID,
		Status:               status,
		Limits:               plan.Limits(),
	}
	if err := r.deps.Subscriptions.CreateSubscription(ctx, sub); err != nil {
		return err
	}
	log.Info().Str("org_id", org.ID).Str("subscription_id", subID).Str("plan", plan.Slug).Msg("subscription recorded from checkout")
	return nil
}

// handleSubscriptionSync covers created and updated: the provider status is
// mapped through the lifecycle table and a price change re-snapshots limits.
func (r *Router) handleSubscriptionSync(ctx context.Context, event stripe.Event) error {
	sub, err := decode[subscriptionObject](event)
	if err != nil {
		return err
	}
	target, ok := lifecycle.MapProviderStatus(sub.Status)
	if !ok {
		return fmt.Errorf("%w: subscription %s has unknown status %q", ErrMalformedEvent, sub.ID, sub.Status)
	}

	local, err := r.deps.Subscriptions.GetSubscriptionByStripeID(ctx, sub.ID)
	if errors.Is(err, store.ErrNotFound) {
		return r.createSubscription(ctx, sub, target)
	}
	if err != nil {
		return err
	}

	next, err := lifecycle.NextSubscription(lifecycle.SubscriptionSync, local.Status, target)
	if err != nil {
		return err
	}

	u := models.SubscriptionUpdate{
		SubscriptionID:    local.ID,
		FromStatus:        local.Status,
		ToStatus:          next,
		CancelAtPeriodEnd: &sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  unixTime(sub.periodEnd()),
		TrialEnd:          unixTime(sub.TrialEnd),
		CanceledAt:        unixTime(sub.CanceledAt),
	}

	if price := sub.priceID(); price != "" && price != local.StripePriceID {
		plan, err := r.deps.Plans.GetPlanByPriceID(ctx, price)
		if err != nil {
			return err
		}
		limits := plan.Limits()
		u.StripePriceID = &price
		u.Limits = &limits
		log.Info().
			Str("subscription_id", sub.ID).
			Str("price_from", local.StripePriceID).
			Str("price_to", price).
			Str("plan", plan.Slug).
			Msg("subscription plan changed; limits re-snapshotted")
	}

	if err := r.deps.Subscriptions.ApplySubscriptionUpdate(ctx, u); err != nil {
		return err
	}
	log.Info().Str("subscription_id", sub.ID).Str("status_from", string(local.Status)).Str("status_to", string(next)).Msg("subscription synced")

	if next == models.SubscriptionTrialing && u.TrialEnd != nil {
		return r.deps.Organizations.SetOrganizationTrial(ctx, local.OrganizationID, u.TrialEnd)
	}
	return nil
}

func (r *Router) createSubscription(ctx context.Context, sub subscriptionObject, status models.SubscriptionStatus) error {
	org, err := r.resolveOrganization(ctx, sub.Metadata[metaOrganizationID], string(sub.Customer))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("subscription %s: %w", sub.ID, errOrganizationPending)
	}
	if err != nil {
		return err
	}

	plan, err := r.deps.Plans.GetPlanByPriceID(ctx, sub.priceID())
	if err != nil {
		return err
	}

	row := &models.Subscription{
		OrganizationID:       org.ID,
		StripeCustomerID:     string(sub.Customer),
		StripeSubscriptionID: sub.ID,
		StripePriceID:        plan.StripePriceID,
		Status:               status,
		Limits:               plan.Limits(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:     unixTime(sub.periodEnd()),
		TrialEnd:             unixTime(sub.TrialEnd),
		CanceledAt:           unixTime(sub.CanceledAt),
	}
	if err := r.deps.Subscriptions.CreateSubscription(ctx, row); err != nil {
		return err
	}
	log.Info().Str("org_id", org.ID).Str("subscription_id", sub.ID).Str("status", string(status)).Msg("subscription created")

	if status == models.SubscriptionTrialing && row.TrialEnd != nil {
		return r.deps.Organizations.SetOrganizationTrial(ctx, org.ID, row.TrialEnd)
	}
	return nil
}

// transitionSubscription applies a fixed-target lifecycle trigger to the
// subscription named in the event.
func (r *Router) transitionSubscription(ctx context.Context, event stripe.Event, trigger lifecycle.SubscriptionTrigger) (*models.Subscription, subscriptionObject, error) {
	sub, err := decode[subscriptionObject](event)
	if err != nil {
		return nil, sub, err
	}
	local, err := r.deps.Subscriptions.GetSubscriptionByStripeID(ctx, sub.ID)
	if err != nil {
		return nil, sub, err
	}
	next, err := lifecycle.NextSubscription(trigger, local.Status, "")
	if err != nil {
		return nil, sub, err
	}

	u := models.SubscriptionUpdate{
		SubscriptionID:    local.ID,
		FromStatus:        local.Status,
		ToStatus:          next,
		CancelAtPeriodEnd: &sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  unixTime(sub.periodEnd()),
	}
	if trigger == lifecycle.SubscriptionDeleted {
		canceledAt := unixTime(sub.CanceledAt)
		if canceledAt == nil {
			now := r.deps.Now().UTC()
			canceledAt = &now
		}
		u.CanceledAt = canceledAt
	}

	if err := r.deps.Subscriptions.ApplySubscriptionUpdate(ctx, u); err != nil {
		return nil, sub, err
	}
	log.Info().Str("subscription_id", sub.ID).Str("status_from", string(local.Status)).Str("status_to", string(next)).Msg("subscription updated")
	return local, sub, nil
}

func (r *Router) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	local, _, err := r.transitionSubscription(ctx, event, lifecycle.SubscriptionDeleted)
	if err != nil {
		return err
	}
	return r.deps.Organizations.SetOrganizationTrial(ctx, local.OrganizationID, nil)
}

func (r *Router) handleSubscriptionPaused(ctx context.Context, event stripe.Event) error {
	_, _, err := r.transitionSubscription(ctx, event, lifecycle.SubscriptionPaused)
	return err
}

func (r *Router) handleSubscriptionResumed(ctx context.Context, event stripe.Event) error {
	_, _, err := r.transitionSubscription(ctx, event, lifecycle.SubscriptionResumed)
	return err
}

func (r *Router) handleTrialWillEnd(ctx context.Context, event stripe.Event) error {
	sub, err := decode[subscriptionObject](event)
	if err != nil {
		return err
	}
	local, err := r.deps.Subscriptions.GetSubscriptionByStripeID(ctx, sub.ID)
	if err != nil {
		return err
	}

	trialEnd := unixTime(sub.TrialEnd)
	when := "soon"
	if trialEnd != nil {
		when = trialEnd.Format(time.DateOnly)
	}
	r.notifyOwner(ctx, local.OrganizationID, notify.Notification{
		Kind:    notify.KindTrialWillEnd,
		Subject: "Your trial is ending",
		Message: fmt.Sprintf("The trial for your %s plan ends %s.", local.Limits.PlanSlug, when),
		Data: map[string]string{
			"subscription_id": sub.ID,
			"trial_end":       when,
		},
	})
	return nil
}

func (r *Router) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	inv, err := decode[invoiceObject](event)
	if err != nil {
		return err
	}
	subID := inv.subscriptionID()
	if subID == "" {
		log.Debug().Str("invoice_id", inv.ID).Msg("invoice is not for a subscription")
		return nil
	}

	local, err := r.deps.Subscriptions.GetSubscriptionByStripeID(ctx, subID)
	if err != nil {
		return err
	}
	next, err := lifecycle.NextSubscription(lifecycle.SubscriptionPaid, local.Status, "")
	if err != nil {
		return err
	}

	periodEnd := unixTime(inv.periodEnd())
	if next == local.Status && (periodEnd == nil || (local.CurrentPeriodEnd != nil && local.CurrentPeriodEnd.Equal(*periodEnd))) {
		log.Debug().Str("subscription_id", subID).Msg("subscription already active for this period")
		return nil
	}

	if err := r.deps.Subscriptions.ApplySubscriptionUpdate(ctx, models.SubscriptionUpdate{
		SubscriptionID:   local.ID,
		FromStatus:       local.Status,
		ToStatus:         next,
		CurrentPeriodEnd: periodEnd,
	}); err != nil {
		return err
	}
	log.Info().Str("subscription_id", subID).Str("status_from", string(local.Status)).Str("status_to", string(next)).Msg("invoice paid")
	return nil
}

func (r *Router) handleInvoiceFailed(ctx context.Context, event stripe.Event) error {
	inv, err := decode[invoiceObject](event)
	if err != nil {
		return err
	}
	subID := inv.subscriptionID()
	if subID == "" {
		log.Debug().Str("invoice_id", inv.ID).Msg("invoice is not for a subscription")
		return nil
	}

	local, err := r.deps.Subscriptions.GetSubscriptionByStripeID(ctx, subID)
	if err != nil {
		return err
	}
	next, err := lifecycle.NextSubscription(lifecycle.SubscriptionPastDue, local.Status, "")
	if err != nil {
		return err
	}
	if next != local.Status {
		if err := r.deps.Subscriptions.ApplySubscriptionUpdate(ctx, models.SubscriptionUpdate{
			SubscriptionID: local.ID,
			FromStatus:     local.Status,
			ToStatus:       next,
		}); err != nil {
			return err
		}
		log.Info().Str("subscription_id", subID).Str("status_from", string(local.Status)).Msg("subscription past due")
	}

	retry := "no further automatic retries"
	if t := unixTime(inv.NextPaymentAttempt); t != nil {
		retry = "next attempt " + t.Format(time.RFC3339)
	}
	r.notifyOwner(ctx, local.OrganizationID, notify.Notification{
		Kind:    notify.KindInvoicePaymentFailed,
		Subject: "We couldn't process your subscription payment",
		Message: fmt.Sprintf("Payment for invoice %s failed after %d attempt(s); %s.", inv.ID, inv.AttemptCount, retry),
		Data: map[string]string{
			"invoice_id":         inv.ID,
			"subscription_id":    subID,
			"amount_due":         fmt.Sprintf("%d", inv.AmountDue),
			"currency":           inv.Currency,
			"hosted_invoice_url": inv.HostedInvoiceURL,
		},
	})
	return nil
}

// notifyOwner addresses n to the organization's owner. Lookup failures only
// degrade the message.
func (r *Router) notifyOwner(ctx context.Context, orgID string, n notify.Notification) {
	n.OrganizationID = orgID
	if org, err := r.deps.Organizations.GetOrganization(ctx, orgID); err == nil {
		if n.Data == nil {
			n.Data = map[string]string{}
		}
		n.Data["owner_user_id"] = org.OwnerUserID
		n.Data["organization_name"] = org.Name
	} else {
		log.Warn().Err(err).Str("org_id", orgID).Msg("notification: owner lookup failed")
	}
	r.notify(ctx, n)
}
