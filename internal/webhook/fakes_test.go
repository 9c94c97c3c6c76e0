package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/notify"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
)

const testSecret = "whsec_test_secret"

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeBookings struct {
	rows    map[string]*models.Booking
	updates []models.BookingUpdate
	err     error
	// applyErr fails the next ApplyBookingUpdate, as a concurrent writer would.
	applyErr error
}

func (f *fakeBookings) GetBookingByID(_ context.Context, id string) (*models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.rows[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, fmt.Errorf("booking %s: %w", id, store.ErrNotFound)
}

func (f *fakeBookings) find(match func(*models.Booking) bool) (*models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, b := range f.rows {
		if match(b) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("booking: %w", store.ErrNotFound)
}

func (f *fakeBookings) GetBookingByCheckoutSession(_ context.Context, id string) (*models.Booking, error) {
	return f.find(func(b *models.Booking) bool {
		return b.StripeCheckoutSessionID != nil && *b.StripeCheckoutSessionID == id
	})
}

func (f *fakeBookings) GetBookingByPaymentIntent(_ context.Context, id string) (*models.Booking, error) {
	return f.find(func(b *models.Booking) bool {
		return b.StripePaymentIntentID != nil && *b.StripePaymentIntentID == id
	})
}

func (f *fakeBookings) ApplyBookingUpdate(_ context.Context, u models.BookingUpdate) error {
	if err := f.applyErr; err != nil {
		f.applyErr = nil
		return err
	}
	b, ok := f.rows[u.BookingID]
	if !ok {
		return store.ErrNotFound
	}
	if b.Status != u.FromStatus || b.PaymentStatus != u.FromPayment {
		return store.ErrStaleWrite
	}
	f.updates = append(f.updates, u)
	b.Status = u.ToStatus
	b.PaymentStatus = u.ToPayment
	if u.PaymentIntentID != nil {
		b.StripePaymentIntentID = u.PaymentIntentID
	}
	if u.ChargeID != nil {
		b.StripeChargeID = u.ChargeID
	}
	if u.RefundedAmountCents != nil {
		b.RefundedAmountCents = *u.RefundedAmountCents
	}
	return nil
}

type fakeSubscriptions struct {
	rows      map[string]*models.Subscription
	created   []*models.Subscription
	updates   []models.SubscriptionUpdate
	createErr error
}

func (f *fakeSubscriptions) GetSubscriptionByStripeID(_ context.Context, id string) (*models.Subscription, error) {
	if s, ok := f.rows[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, fmt.Errorf("subscription %s: %w", id, store.ErrNotFound)
}

func (f *fakeSubscriptions) CreateSubscription(_ context.Context, s *models.Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.rows[s.StripeSubscriptionID]; ok {
		return store.ErrStaleWrite
	}
	s.ID = int64(len(f.rows) + 1)
	cp := *s
	f.rows[s.StripeSubscriptionID] = &cp
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSubscriptions) ApplySubscriptionUpdate(_ context.Context, u models.SubscriptionUpdate) error {
	for _, s := range f.rows {
		if s.ID != u.SubscriptionID {
			continue
		}
		if s.Status != u.FromStatus {
			return store.ErrStaleWrite
		}
		f.updates = append(f.updates, u)
		s.Status = u.ToStatus
		if u.StripePriceID != nil {
			s.StripePriceID = *u.StripePriceID
		}
		if u.Limits != nil {
			s.Limits = *u.Limits
		}
		if u.CancelAtPeriodEnd != nil {
			s.CancelAtPeriodEnd = *u.CancelAtPeriodEnd
		}
		if u.CurrentPeriodEnd != nil {
			s.CurrentPeriodEnd = u.CurrentPeriodEnd
		}
		if u.TrialEnd != nil {
			s.TrialEnd = u.TrialEnd
		}
		if u.CanceledAt != nil {
			s.CanceledAt = u.CanceledAt
		}
		return nil
	}
	return store.ErrNotFound
}

type fakeOrganizations struct {
	rows    map[string]*models.Organization
	payouts map[string]models.PayoutStatus
	created []*models.Organization
}

func (f *fakeOrganizations) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	if o, ok := f.rows[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, fmt.Errorf("organization %s: %w", id, store.ErrNotFound)
}

func (f *fakeOrganizations) GetOrganizationByCustomer(_ context.Context, customerID string) (*models.Organization, error) {
	for _, o := range f.rows {
		if o.StripeCustomerID != nil && *o.StripeCustomerID == customerID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("organization for %s: %w", customerID, store.ErrNotFound)
}

func (f *fakeOrganizations) CreateOrganization(_ context.Context, o *models.Organization) error {
	o.ID = fmt.Sprintf("org-%d", len(f.rows)+1)
	cp := *o
	f.rows[o.ID] = &cp
	f.created = append(f.created, o)
	return nil
}

func (f *fakeOrganizations) SetOrganizationCustomer(_ context.Context, orgID, customerID string) error {
	o, ok := f.rows[orgID]
	if !ok {
		return store.ErrNotFound
	}
	o.StripeCustomerID = &customerID
	return nil
}

func (f *fakeOrganizations) SetOrganizationTrial(_ context.Context, orgID string, trialEnd *time.Time) error {
	o, ok := f.rows[orgID]
	if !ok {
		return store.ErrNotFound
	}
	o.TrialEndsAt = trialEnd
	return nil
}

func (f *fakeOrganizations) SetPayoutStatusByConnectAccount(_ context.Context, accountID string, status models.PayoutStatus) error {
	for _, o := range f.rows {
		if o.StripeConnectAccountID != nil && *o.StripeConnectAccountID == accountID {
			o.PayoutStatus = status
			f.payouts[accountID] = status
			return nil
		}
	}
	return fmt.Errorf("connect account %s: %w", accountID, store.ErrNotFound)
}

type fakePlans map[string]*models.Plan

func (f fakePlans) GetPlanByPriceID(_ context.Context, priceID string) (*models.Plan, error) {
	if p, ok := f[priceID]; ok {
		return p, nil
	}
	return nil, store.ErrPlanNotFound
}

type fakeLedger struct {
	events   map[string]*models.WebhookEvent
	queue    *fakeQueue
	claimErr error
	markErr  error
}

func (f *fakeLedger) ClaimWebhookEvent(_ context.Context, id, typ string, payload []byte, _ time.Duration) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if e, ok := f.events[id]; ok {
		if e.Status != models.WebhookEventFailed || f.queue.hasReplay(id) {
			return false, nil
		}
		e.Status = models.WebhookEventReceived
		e.Attempts++
		return true, nil
	}
	f.events[id] = &models.WebhookEvent{
		EventID:   id,
		EventType: typ,
		Payload:   append([]byte(nil), payload...),
		Status:    models.WebhookEventReceived,
		Attempts:  1,
	}
	return true, nil
}

func (f *fakeLedger) MarkWebhookEvent(_ context.Context, id string, status models.WebhookEventStatus, lastErr string) error {
	if f.markErr != nil {
		return f.markErr
	}
	e, ok := f.events[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = status
	if lastErr != "" {
		e.LastError = &lastErr
	} else {
		e.LastError = nil
	}
	return nil
}

func (f *fakeLedger) GetWebhookEvent(_ context.Context, id string) (*models.WebhookEvent, error) {
	if e, ok := f.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, fmt.Errorf("webhook event %s: %w", id, store.ErrNotFound)
}

func (f *fakeLedger) status(id string) models.WebhookEventStatus {
	if e, ok := f.events[id]; ok {
		return e.Status
	}
	return ""
}

type fakeQueue struct {
	jobs []*models.Job
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job *models.Job) error {
	if f.err != nil {
		return f.err
	}
	job.ID = int64(len(f.jobs) + 1)
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) hasReplay(eventID string) bool {
	for _, job := range f.jobs {
		if job.JobType == models.JobTypeWebhookReplay && job.Payload.GetString("event_id") == eventID {
			return true
		}
	}
	return false
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type harness struct {
	router   *Router
	bookings *fakeBookings
	subs     *fakeSubscriptions
	orgs     *fakeOrganizations
	plans    fakePlans
	ledger   *fakeLedger
	queue    *fakeQueue
	notes    *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bookings: &fakeBookings{rows: map[string]*models.Booking{}},
		subs:     &fakeSubscriptions{rows: map[string]*models.Subscription{}},
		orgs:     &fakeOrganizations{rows: map[string]*models.Organization{}, payouts: map[string]models.PayoutStatus{}},
		plans: fakePlans{
			"price_starter": {Slug: "starter", StripePriceID: "price_starter", MaxListings: 3, MaxMembers: 2, MaxPhotosPerListing: 10, CommissionBps: 1200},
			"price_pro":     {Slug: "pro", StripePriceID: "price_pro", MaxListings: 25, MaxMembers: 10, MaxPhotosPerListing: 30, CommissionBps: 800},
		},
		queue: &fakeQueue{},
		notes: &recordingNotifier{},
	}
	h.ledger = &fakeLedger{events: map[string]*models.WebhookEvent{}, queue: h.queue}
	r, err := NewRouter(Config{Secret: testSecret, MaxAttempts: 4}, Deps{
		Bookings:      h.bookings,
		Subscriptions: h.subs,
		Organizations: h.orgs,
		Plans:         h.plans,
		Ledger:        h.ledger,
		Queue:         h.queue,
		Notifier:      h.notes,
		Now:           func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h.router = r
	return h
}

func strPtr(s string) *string { return &s }

func (h *harness) addBooking(b models.Booking) *models.Booking {
	if b.OrganizationID == "" {
		b.OrganizationID = "org-host"
	}
	if b.Currency == "" {
		b.Currency = "usd"
	}
	h.bookings.rows[b.ID] = &b
	return &b
}

func (h *harness) addOrganization(o models.Organization) *models.Organization {
	h.orgs.rows[o.ID] = &o
	return &o
}

func (h *harness) addSubscription(s models.Subscription) *models.Subscription {
	s.ID = int64(len(h.subs.rows) + 1)
	h.subs.rows[s.StripeSubscriptionID] = &s
	return &s
}

// eventPayload builds a provider event envelope around object.
func eventPayload(t *testing.T, id, typ string, object any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        typ,
		"api_version": "2025-03-31.basil",
		"created":     testNow.Unix(),
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func sign(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

// deliver signs and hands the event to the router the way the HTTP handler does.
func (h *harness) deliver(t *testing.T, id, typ string, object any) Result {
	t.Helper()
	payload := eventPayload(t, id, typ, object)
	res, err := h.router.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("Handle(%s): %v", typ, err)
	}
	return res
}
