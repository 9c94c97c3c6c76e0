// Package webhook verifies inbound Stripe events, records them in the event
// ledger and dispatches each one to exactly one handler. Failed deliveries are
// handed to the retry queue instead of being dropped.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"

	"github.com/PortNumber53/fleetrent/backend/internal/lifecycle"
	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/notify"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
)

var (
	// ErrInvalidSignature means the Stripe-Signature header did not verify.
	ErrInvalidSignature = errors.New("webhook: invalid signature")

	// ErrMalformedEvent means the payload could not be decoded.
	ErrMalformedEvent = errors.New("webhook: malformed event")

	// ErrUnhandledEvent is returned by Dispatch for event types without a handler.
	ErrUnhandledEvent = errors.New("webhook: unhandled event type")

	// ErrNotRequeueable is returned by Requeue for events that are not failed or dead.
	ErrNotRequeueable = errors.New("webhook: event is not failed or dead")
)

// Outcome says what happened to a delivered event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeQueued    Outcome = "queued"
)

// Result describes a handled delivery.
type Result struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Outcome   Outcome `json:"status"`
}

type BookingStore interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByCheckoutSession(ctx context.Context, sessionID string) (*models.Booking, error)
	GetBookingByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Booking, error)
	ApplyBookingUpdate(ctx context.Context, u models.BookingUpdate) error
}

type SubscriptionStore interface {
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	ApplySubscriptionUpdate(ctx context.Context, u models.SubscriptionUpdate) error
}

type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	GetOrganizationByCustomer(ctx context.Context, customerID string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error
	SetOrganizationCustomer(ctx context.Context, orgID, customerID string) error
	SetOrganizationTrial(ctx context.Context, orgID string, trialEnd *time.Time) error
	SetPayoutStatusByConnectAccount(ctx context.Context, accountID string, status models.PayoutStatus) error
}

type PlanStore interface {
	GetPlanByPriceID(ctx context.Context, priceID string) (*models.Plan, error)
}

// Ledger records every received event for idempotence and replay.
type Ledger interface {
	ClaimWebhookEvent(ctx context.Context, eventID, eventType string, payload []byte, staleAfter time.Duration) (bool, error)
	MarkWebhookEvent(ctx context.Context, eventID string, status models.WebhookEventStatus, lastErr string) error
	GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

// RetryQueue accepts replay jobs for failed deliveries.
type RetryQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Config controls verification and retry behaviour.
type Config struct {
	// Secret is the endpoint signing secret (whsec_...).
	Secret string
	// Tolerance is the maximum age of a signed timestamp. Defaults to 5m.
	Tolerance time.Duration
	// MaxAttempts bounds how often a failed event is replayed. Defaults to 5.
	MaxAttempts int
	// ClaimTimeout is how long a "received" ledger entry may sit before a
	// redelivery is allowed to take it over. Defaults to 5m.
	ClaimTimeout time.Duration
}

// Deps are the collaborators handlers read and write through.
type Deps struct {
	Bookings      BookingStore
	Subscriptions SubscriptionStore
	Organizations OrganizationStore
	Plans         PlanStore
	Ledger        Ledger
	Queue         RetryQueue
	Notifier      notify.Notifier
	Now           func() time.Time
}

type handlerFunc func(ctx context.Context, event stripe.Event) error

// Router verifies, records and dispatches provider events.
type Router struct {
	cfg      Config
	deps     Deps
	handlers map[string]handlerFunc
}

// NewRouter builds a Router and its handler table.
func NewRouter(cfg Config, deps Deps) (*Router, error) {
	if cfg.Secret == "" {
		return nil, errors.New("webhook: signing secret is required")
	}
	if deps.Bookings == nil || deps.Subscriptions == nil || deps.Organizations == nil ||
		deps.Plans == nil || deps.Ledger == nil || deps.Queue == nil {
		return nil, errors.New("webhook: all stores and the retry queue are required")
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Router{cfg: cfg, deps: deps}
	r.handlers = map[string]handlerFunc{
		"checkout.session.completed":               r.handleCheckoutCompleted,
		"checkout.session.async_payment_succeeded": r.handleCheckoutCompleted,
		"checkout.session.async_payment_failed":    r.handleCheckoutAsyncFailed,
		"checkout.session.expired":                 r.handleCheckoutExpired,
		"customer.subscription.created":            r.handleSubscriptionSync,
		"customer.subscription.updated":            r.handleSubscriptionSync,
		"customer.subscription.deleted":            r.handleSubscriptionDeleted,
		"customer.subscription.paused":             r.handleSubscriptionPaused,
		"customer.subscription.resumed":            r.handleSubscriptionResumed,
		"customer.subscription.trial_will_end":     r.handleTrialWillEnd,
		"invoice.payment_succeeded":                r.handleInvoicePaid,
		"invoice.payment_failed":                   r.handleInvoiceFailed,
		"payment_intent.amount_capturable_updated": r.handlePaymentAuthorized,
		"payment_intent.succeeded":                 r.handlePaymentSucceeded,
		"payment_intent.payment_failed":            r.handlePaymentFailed,
		"payment_intent.canceled":                  r.handlePaymentCanceled,
		"charge.refunded":                          r.handleChargeRefunded,
		"charge.dispute.created":                   r.handleDisputeCreated,
		"charge.dispute.closed":                    r.handleDisputeClosed,
		"account.updated":                          r.handleAccountUpdated,
		"account.application.deauthorized":         r.handleAccountDeauthorized,
	}
	return r, nil
}

// EventTypes lists the event types the router handles, sorted.
func (r *Router) EventTypes() []string {
	types := lo.Keys(r.handlers)
	sort.Strings(types)
	return types
}

// Handle verifies a delivery, claims it in the ledger and dispatches it.
// Handler failures are recorded and queued for replay and do not surface as
// errors. Only ErrInvalidSignature, ErrMalformedEvent and failures to persist
// ledger or queue state are returned.
func (r *Router) Handle(ctx context.Context, payload []byte, signatureHeader string) (Result, error) {
	event, err := r.Verify(payload, signatureHeader)
	if err != nil {
		return Result{}, err
	}

	res := Result{EventID: event.ID, EventType: string(event.Type)}
	logger := log.With().Str("event_id", event.ID).Str("type", string(event.Type)).Logger()

	claimed, err := r.deps.Ledger.ClaimWebhookEvent(ctx, event.ID, string(event.Type), payload, r.cfg.ClaimTimeout)
	if err != nil {
		return res, fmt.Errorf("webhook: record event: %w", err)
	}
	if !claimed {
		logger.Info().Msg("Stripe webhook duplicate delivery acknowledged")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	err = r.Dispatch(ctx, event)
	switch {
	case err == nil:
		res.Outcome = OutcomeProcessed
		return res, r.mark(ctx, event.ID, models.WebhookEventProcessed, "")

	case errors.Is(err, ErrUnhandledEvent):
		logger.Info().Msg("Stripe webhook ignored (unhandled type)")
		res.Outcome = OutcomeIgnored
		return res, r.mark(ctx, event.ID, models.WebhookEventSkipped, err.Error())

	case isPermanent(err):
		logger.Warn().Err(err).Msg("Stripe webhook skipped")
		res.Outcome = OutcomeSkipped
		return res, r.mark(ctx, event.ID, models.WebhookEventSkipped, err.Error())
	}

	logger.Error().Err(err).Msg("Stripe webhook handler failed; queueing replay")
	if err := r.mark(ctx, event.ID, models.WebhookEventFailed, err.Error()); err != nil {
		return res, err
	}
	// A failed entry without a replay job is claimable again, so the
	// provider's redelivery of this 5xx starts over.
	if err := r.enqueueReplay(ctx, event.ID, string(event.Type)); err != nil {
		return res, err
	}
	res.Outcome = OutcomeQueued
	return res, nil
}

// Dispatch invokes the single handler registered for the event type.
func (r *Router) Dispatch(ctx context.Context, event stripe.Event) error {
	h, ok := r.handlers[string(event.Type)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}
	return h(ctx, event)
}

// Replay re-dispatches a stored event. The payload was verified on receipt
// so no signature check happens. A permanent failure settles the event as
// skipped and returns nil; any other failure is returned for retry.
func (r *Router) Replay(ctx context.Context, eventID string) error {
	stored, err := r.deps.Ledger.GetWebhookEvent(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("event_id", eventID).Msg("Stripe webhook replay: event no longer in ledger")
		return nil
	}
	if err != nil {
		return err
	}

	var event stripe.Event
	if err := json.Unmarshal(stored.Payload, &event); err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("Stripe webhook replay: stored payload is unreadable")
		if merr := r.mark(ctx, eventID, models.WebhookEventDead, err.Error()); merr != nil {
			log.Error().Err(merr).Str("event_id", eventID).Msg("Stripe webhook replay: failed to record error")
		}
		return nil
	}

	err = r.Dispatch(ctx, event)
	switch {
	case err == nil:
		log.Info().Str("event_id", eventID).Str("type", stored.EventType).Msg("Stripe webhook replay succeeded")
		return r.mark(ctx, eventID, models.WebhookEventProcessed, "")
	case errors.Is(err, ErrUnhandledEvent), isPermanent(err):
		log.Warn().Err(err).Str("event_id", eventID).Msg("Stripe webhook replay skipped")
		return r.mark(ctx, eventID, models.WebhookEventSkipped, err.Error())
	}

	if merr := r.mark(ctx, eventID, models.WebhookEventFailed, err.Error()); merr != nil {
		log.Error().Err(merr).Str("event_id", eventID).Msg("Stripe webhook replay: failed to record error")
	}
	return err
}

// MarkDead records that an event exhausted its replay attempts.
func (r *Router) MarkDead(ctx context.Context, eventID, reason string) error {
	log.Error().Str("event_id", eventID).Str("reason", reason).Msg("Stripe webhook dead-lettered")
	return r.mark(ctx, eventID, models.WebhookEventDead, reason)
}

// Requeue schedules a fresh replay for a failed or dead event.
func (r *Router) Requeue(ctx context.Context, eventID string) error {
	stored, err := r.deps.Ledger.GetWebhookEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if stored.Status != models.WebhookEventDead && stored.Status != models.WebhookEventFailed {
		return fmt.Errorf("%w: %s is %s", ErrNotRequeueable, eventID, stored.Status)
	}

	lastErr := ""
	if stored.LastError != nil {
		lastErr = *stored.LastError
	}
	if err := r.mark(ctx, eventID, models.WebhookEventFailed, lastErr); err != nil {
		return err
	}
	return r.enqueueReplay(ctx, eventID, stored.EventType)
}

func (r *Router) enqueueReplay(ctx context.Context, eventID, eventType string) error {
	job := &models.Job{
		JobType:     models.JobTypeWebhookReplay,
		Payload:     models.JSONB{"event_id": eventID, "event_type": eventType},
		Priority:    models.JobPriorityHigh,
		MaxAttempts: r.cfg.MaxAttempts,
		Metadata:    models.JSONB{"source": "stripe_webhook"},
	}
	if err := r.deps.Queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("webhook: enqueue replay for %s: %w", eventID, err)
	}
	return nil
}

func (r *Router) mark(ctx context.Context, eventID string, status models.WebhookEventStatus, lastErr string) error {
	if err := r.deps.Ledger.MarkWebhookEvent(ctx, eventID, status, lastErr); err != nil {
		return fmt.Errorf("webhook: mark event %s %s: %w", eventID, status, err)
	}
	return nil
}

// isPermanent reports errors a retry cannot fix: the row is missing, the
// lifecycle forbids the move, or the payload is unusable.
func isPermanent(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, lifecycle.ErrTransitionNotAllowed) ||
		errors.Is(err, ErrMalformedEvent)
}
