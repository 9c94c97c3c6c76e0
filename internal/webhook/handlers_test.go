package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
	"github.com/PortNumber53/fleetrent/backend/internal/notify"
)

func TestCheckoutCompletedInstantVersusReview(t *testing.T) {
	tests := []struct {
		name    string
		instant bool
		want    models.BookingStatus
	}{
		{name: "instant booking", instant: true, want: models.BookingApproved},
		{name: "host review", instant: false, want: models.BookingPendingApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addBooking(models.Booking{
				ID:                      "b1",
				Status:                  models.BookingDraft,
				PaymentStatus:           models.PaymentNotPaid,
				TotalPriceCents:         15000,
				StripeCheckoutSessionID: strPtr("cs_1"),
				InstantBooking:          tt.instant,
			})

			res := h.deliver(t, "evt_cs", "checkout.session.completed", map[string]any{
				"id":             "cs_1",
				"mode":           "payment",
				"payment_status": "paid",
				"payment_intent": "pi_1",
			})

			if res.Outcome != OutcomeProcessed {
				t.Fatalf("outcome = %s", res.Outcome)
			}
			b := h.bookings.rows["b1"]
			if b.Status != tt.want || b.PaymentStatus != models.PaymentPaid {
				t.Fatalf("booking = %s/%s, want %s/paid", b.Status, b.PaymentStatus, tt.want)
			}
			if b.StripePaymentIntentID == nil || *b.StripePaymentIntentID != "pi_1" {
				t.Fatalf("payment intent id not stored")
			}
		})
	}
}

func TestCheckoutCompletedFindsBookingByMetadata(t *testing.T) {
	h := newHarness(t)
	h.addBooking(models.Booking{ID: "b7", Status: models.BookingDraft, PaymentStatus: models.PaymentNotPaid})

	h.deliver(t, "evt_cs", "checkout.session.completed", map[string]any{
		"id":             "cs_unknown",
		"mode":           "payment",
		"payment_status": "paid",
		"metadata":       map[string]string{"booking_id": "b7"},
	})

	if got := h.bookings.rows["b7"].Status; got != models.BookingPendingApproval {
		t.Fatalf("status = %s, want pending_approval", got)
	}
}

func TestCheckoutDelayedPayment(t *testing.T) {
	type step struct {
		typ           string
		paymentStatus string
	}
	tests := []struct {
		name        string
		steps       []step
		wantStatus  models.BookingStatus
		wantPayment models.PaymentStatus
		wantUpdates int
	}{
		{
			name:        "completed while unpaid",
			steps:       []step{{"checkout.session.completed", "unpaid"}},
			wantStatus:  models.BookingDraft,
			wantPayment: models.PaymentNotPaid,
		},
		{
			name: "async payment succeeded",
			steps: []step{
				{"checkout.session.completed", "unpaid"},
				{"checkout.session.async_payment_succeeded", "paid"},
			},
			wantStatus:  models.BookingPendingApproval,
			wantPayment: models.PaymentPaid,
			wantUpdates: 1,
		},
		{
			name: "async payment failed",
			steps: []step{
				{"checkout.session.completed", "unpaid"},
				{"checkout.session.async_payment_failed", "unpaid"},
			},
			wantStatus:  models.BookingCancelledBySystem,
			wantPayment: models.PaymentFailed,
			wantUpdates: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addBooking(models.Booking{
				ID:                      "b1",
				Status:                  models.BookingDraft,
				PaymentStatus:           models.PaymentNotPaid,
				TotalPriceCents:         15000,
				StripeCheckoutSessionID: strPtr("cs_1"),
			})

			for i, st := range tt.steps {
				res := h.deliver(t, fmt.Sprintf("evt_%d", i), st.typ, map[string]any{
					"id":             "cs_1",
					"mode":           "payment",
					"payment_status": st.paymentStatus,
					"payment_intent": "pi_1",
				})
				if res.Outcome != OutcomeProcessed {
					t.Fatalf("%s: outcome = %s, want processed", st.typ, res.Outcome)
				}
			}

			b := h.bookings.rows["b1"]
			if b.Status != tt.wantStatus || b.PaymentStatus != tt.wantPayment {
				t.Fatalf("booking = %s/%s, want %s/%s", b.Status, b.PaymentStatus, tt.wantStatus, tt.wantPayment)
			}
			if len(h.bookings.updates) != tt.wantUpdates {
				t.Fatalf("updates = %d, want %d", len(h.bookings.updates), tt.wantUpdates)
			}
		})
	}
}

func TestCheckoutExpiredCancelsDraft(t *testing.T) {
	h := newHarness(t)
	h.addBooking(models.Booking{ID: "b1", Status: models.BookingDraft, PaymentStatus: models.PaymentNotPaid, StripeCheckoutSessionID: strPtr("cs_1")})

	h.deliver(t, "evt_exp", "checkout.session.expired", map[string]any{"id": "cs_1", "mode": "payment"})

	b := h.bookings.rows["b1"]
	if b.Status != models.BookingCancelledBySystem || b.PaymentStatus != models.PaymentFailed {
		t.Fatalf("booking = %s/%s", b.Status, b.PaymentStatus)
	}
}

func TestChargeRefundedFullVersusPartial(t *testing.T) {
	tests := []struct {
		name        string
		refunded    int64
		wantPayment models.PaymentStatus
		wantStatus  models.BookingStatus
	}{
		{name: "partial", refunded: 5000, wantPayment: models.PaymentPartiallyRefunded, wantStatus: models.BookingApproved},
		{name: "full", refunded: 20000, wantPayment: models.PaymentRefunded, wantStatus: models.BookingCancelledByHost},
		{name: "over", refunded: 25000, wantPayment: models.PaymentRefunded, wantStatus: models.BookingCancelledByHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addBooking(paidBooking("b1"))

			h.deliver(t, "evt_ref", "charge.refunded", map[string]any{
				"id":              "ch_1",
				"payment_intent":  "pi_b1",
				"amount_refunded": tt.refunded,
			})

			b := h.bookings.rows["b1"]
			if b.PaymentStatus != tt.wantPayment || b.Status != tt.wantStatus {
				t.Fatalf("booking = %s/%s, want %s/%s", b.Status, b.PaymentStatus, tt.wantStatus, tt.wantPayment)
			}
			if b.RefundedAmountCents != tt.refunded {
				t.Fatalf("refunded = %d, want %d", b.RefundedAmountCents, tt.refunded)
			}
		})
	}
}

func TestPaymentIntentTransitions(t *testing.T) {
	tests := []struct {
		typ         string
		from        models.PaymentStatus
		wantPayment models.PaymentStatus
		wantStatus  models.BookingStatus
	}{
		{"payment_intent.amount_capturable_updated", models.PaymentNotPaid, models.PaymentAuthorized, models.BookingPendingApproval},
		{"payment_intent.succeeded", models.PaymentAuthorized, models.PaymentPaid, models.BookingPendingApproval},
		{"payment_intent.payment_failed", models.PaymentNotPaid, models.PaymentFailed, models.BookingPendingApproval},
		{"payment_intent.canceled", models.PaymentAuthorized, models.PaymentFailed, models.BookingCancelledBySystem},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			h := newHarness(t)
			h.addBooking(models.Booking{
				ID:                    "b1",
				Status:                models.BookingPendingApproval,
				PaymentStatus:         tt.from,
				StripePaymentIntentID: strPtr("pi_1"),
			})

			h.deliver(t, "evt_pi", tt.typ, map[string]any{"id": "pi_1", "latest_charge": "ch_1"})

			b := h.bookings.rows["b1"]
			if b.PaymentStatus != tt.wantPayment || b.Status != tt.wantStatus {
				t.Fatalf("booking = %s/%s, want %s/%s", b.Status, b.PaymentStatus, tt.wantStatus, tt.wantPayment)
			}
		})
	}
}

func TestDisputeLifecycle(t *testing.T) {
	h := newHarness(t)
	h.addBooking(paidBooking("b1"))
	dispute := map[string]any{"id": "dp_1", "charge": "ch_1", "payment_intent": "pi_b1", "reason": "fraudulent", "amount": 20000}

	h.deliver(t, "evt_dc", "charge.dispute.created", dispute)
	b := h.bookings.rows["b1"]
	if b.Status != models.BookingDisputed || b.PaymentStatus != models.PaymentDisputed {
		t.Fatalf("after open: %s/%s", b.Status, b.PaymentStatus)
	}
	if len(h.notes.sent) != 1 || h.notes.sent[0].Kind != notify.KindBookingDisputed || h.notes.sent[0].OrganizationID != "org-host" {
		t.Fatalf("expected a dispute notification for the host, got %+v", h.notes.sent)
	}

	dispute["status"] = "won"
	h.deliver(t, "evt_dw", "charge.dispute.closed", dispute)
	b = h.bookings.rows["b1"]
	if b.Status != models.BookingCompleted || b.PaymentStatus != models.PaymentPaid {
		t.Fatalf("after won: %s/%s", b.Status, b.PaymentStatus)
	}
}

func TestDisputeLostKeepsBookingDisputed(t *testing.T) {
	h := newHarness(t)
	b := paidBooking("b1")
	b.Status = models.BookingDisputed
	b.PaymentStatus = models.PaymentDisputed
	h.addBooking(b)

	h.deliver(t, "evt_dl", "charge.dispute.closed", map[string]any{"id": "dp_1", "payment_intent": "pi_b1", "status": "lost"})

	got := h.bookings.rows["b1"]
	if got.Status != models.BookingDisputed || got.PaymentStatus != models.PaymentRefunded {
		t.Fatalf("after lost: %s/%s", got.Status, got.PaymentStatus)
	}
}

func subscriptionFixture(org string) models.Subscription {
	end := testNow.Add(72 * time.Hour).Truncate(time.Second)
	return models.Subscription{
		OrganizationID:       org,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		StripePriceID:        "price_starter",
		Status:               models.SubscriptionActive,
		Limits:               models.PlanLimits{PlanSlug: "starter", MaxListings: 3, MaxMembers: 2, MaxPhotosPerListing: 10, CommissionBps: 1200},
		CurrentPeriodEnd:     &end,
	}
}

func subscriptionObj(status, price string) map[string]any {
	return map[string]any{
		"id":                   "sub_1",
		"customer":             "cus_1",
		"status":               status,
		"cancel_at_period_end": true,
		"items": map[string]any{"data": []any{
			map[string]any{"current_period_end": testNow.Add(30 * 24 * time.Hour).Unix(), "price": map[string]any{"id": price}},
		}},
	}
}

func TestSubscriptionUpdatedResnapshotsLimits(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1", StripeCustomerID: strPtr("cus_1")})
	h.addSubscription(subscriptionFixture("org-1"))

	h.deliver(t, "evt_su", "customer.subscription.updated", subscriptionObj("active", "price_pro"))

	s := h.subs.rows["sub_1"]
	if s.StripePriceID != "price_pro" || s.Limits.PlanSlug != "pro" || s.Limits.MaxListings != 25 || s.Limits.CommissionBps != 800 {
		t.Fatalf("limits not re-snapshotted: %+v", s)
	}
	if !s.CancelAtPeriodEnd {
		t.Fatalf("cancel_at_period_end not recorded")
	}
	if want := testNow.Add(30 * 24 * time.Hour).Truncate(time.Second); s.CurrentPeriodEnd == nil || !s.CurrentPeriodEnd.Equal(want) {
		t.Fatalf("period end = %v, want %v", s.CurrentPeriodEnd, want)
	}
}

func TestSubscriptionUpdatedSamePriceKeepsLimits(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1"})
	h.addSubscription(subscriptionFixture("org-1"))

	h.deliver(t, "evt_su", "customer.subscription.updated", subscriptionObj("past_due", "price_starter"))

	if len(h.subs.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(h.subs.updates))
	}
	u := h.subs.updates[0]
	if u.Limits != nil || u.StripePriceID != nil {
		t.Fatalf("limits must not change without a price change")
	}
	if u.ToStatus != models.SubscriptionPastDue {
		t.Fatalf("status = %s, want past_due", u.ToStatus)
	}
}

func TestSubscriptionCreatedBeforeOrganizationIsRetried(t *testing.T) {
	h := newHarness(t)

	res := h.deliver(t, "evt_sc", "customer.subscription.created", subscriptionObj("active", "price_starter"))

	if res.Outcome != OutcomeQueued || len(h.queue.jobs) != 1 {
		t.Fatalf("outcome = %s, jobs = %d; want queued with one job", res.Outcome, len(h.queue.jobs))
	}
}

func TestSubscriptionCreatedForKnownCustomer(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1", StripeCustomerID: strPtr("cus_1")})
	obj := subscriptionObj("trialing", "price_starter")
	trialEnd := testNow.Add(14 * 24 * time.Hour).Truncate(time.Second)
	obj["trial_end"] = trialEnd.Unix()

	h.deliver(t, "evt_sc", "customer.subscription.created", obj)

	s := h.subs.rows["sub_1"]
	if s == nil || s.Status != models.SubscriptionTrialing || s.Limits.PlanSlug != "starter" {
		t.Fatalf("subscription not created as expected: %+v", s)
	}
	if o := h.orgs.rows["org-1"]; o.TrialEndsAt == nil || !o.TrialEndsAt.Equal(trialEnd) {
		t.Fatalf("organization trial not recorded: %v", o.TrialEndsAt)
	}
}

func TestSubscriptionCheckoutCreatesOrganization(t *testing.T) {
	h := newHarness(t)

	h.deliver(t, "evt_cs_sub", "checkout.session.completed", map[string]any{
		"id":             "cs_sub",
		"mode":           "subscription",
		"payment_status": "paid",
		"customer":       "cus_new",
		"subscription":   "sub_new",
		"metadata": map[string]string{
			"owner_user_id":     "user-42",
			"organization_name": "Coastal Campers",
			"plan_price_id":     "price_pro",
		},
	})

	if len(h.orgs.created) != 1 {
		t.Fatalf("organizations created = %d, want 1", len(h.orgs.created))
	}
	org := h.orgs.created[0]
	if org.OwnerUserID != "user-42" || org.Name != "Coastal Campers" || org.PayoutStatus != models.PayoutDisabled {
		t.Fatalf("unexpected organization %+v", org)
	}
	s := h.subs.rows["sub_new"]
	if s == nil || s.OrganizationID != org.ID || s.Status != models.SubscriptionActive || s.Limits.PlanSlug != "pro" {
		t.Fatalf("unexpected subscription %+v", s)
	}
}

func TestSubscriptionCheckoutWithoutOwnerIsSkipped(t *testing.T) {
	h := newHarness(t)

	res := h.deliver(t, "evt_cs_sub", "checkout.session.completed", map[string]any{
		"id": "cs_sub", "mode": "subscription", "payment_status": "paid", "customer": "cus_new", "subscription": "sub_new",
	})

	if res.Outcome != OutcomeSkipped || len(h.orgs.created) != 0 {
		t.Fatalf("outcome = %s, orgs = %d", res.Outcome, len(h.orgs.created))
	}
}

func TestSubscriptionCheckoutWithoutCustomerIsSkipped(t *testing.T) {
	h := newHarness(t)

	res := h.deliver(t, "evt_cs_sub", "checkout.session.completed", map[string]any{
		"id": "cs_sub", "mode": "subscription", "payment_status": "paid", "subscription": "sub_new",
		"metadata": map[string]string{"owner_user_id": "user-42", "plan_price_id": "price_pro"},
	})

	if res.Outcome != OutcomeSkipped || len(h.orgs.created) != 0 {
		t.Fatalf("outcome = %s, orgs = %d", res.Outcome, len(h.orgs.created))
	}
}

func TestSubscriptionCheckoutReplayReusesOrganization(t *testing.T) {
	h := newHarness(t)
	h.subs.createErr = errors.New("connection reset")

	res := h.deliver(t, "evt_cs_sub", "checkout.session.completed", map[string]any{
		"id":             "cs_sub",
		"mode":           "subscription",
		"payment_status": "paid",
		"customer":       "cus_new",
		"subscription":   "sub_new",
		"metadata":       map[string]string{"owner_user_id": "user-42", "plan_price_id": "price_pro"},
	})
	if res.Outcome != OutcomeQueued {
		t.Fatalf("outcome = %s, want queued", res.Outcome)
	}

	h.subs.createErr = nil
	if err := h.router.Replay(context.Background(), "evt_cs_sub"); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(h.orgs.created) != 1 {
		t.Fatalf("organizations created = %d, want 1", len(h.orgs.created))
	}
	if s := h.subs.rows["sub_new"]; s == nil || s.OrganizationID != h.orgs.created[0].ID {
		t.Fatalf("subscription not attached to the first organization: %+v", s)
	}
}

func TestSubscriptionDeletedClearsTrial(t *testing.T) {
	h := newHarness(t)
	trial := testNow.Add(48 * time.Hour)
	h.addOrganization(models.Organization{ID: "org-1", TrialEndsAt: &trial})
	sub := subscriptionFixture("org-1")
	sub.Status = models.SubscriptionTrialing
	h.addSubscription(sub)

	h.deliver(t, "evt_sd", "customer.subscription.deleted", subscriptionObj("canceled", "price_starter"))

	s := h.subs.rows["sub_1"]
	if s.Status != models.SubscriptionCanceled {
		t.Fatalf("status = %s, want canceled", s.Status)
	}
	if s.CanceledAt == nil || !s.CanceledAt.Equal(testNow) {
		t.Fatalf("canceled_at = %v, want clock time", s.CanceledAt)
	}
	if h.orgs.rows["org-1"].TrialEndsAt != nil {
		t.Fatalf("trial bookkeeping not cleared")
	}
}

func TestSubscriptionPauseAndResume(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1"})
	h.addSubscription(subscriptionFixture("org-1"))

	h.deliver(t, "evt_p", "customer.subscription.paused", subscriptionObj("paused", "price_starter"))
	if got := h.subs.rows["sub_1"].Status; got != models.SubscriptionPaused {
		t.Fatalf("status = %s, want paused", got)
	}
	h.deliver(t, "evt_r", "customer.subscription.resumed", subscriptionObj("active", "price_starter"))
	if got := h.subs.rows["sub_1"].Status; got != models.SubscriptionActive {
		t.Fatalf("status = %s, want active", got)
	}
}

func TestTrialWillEndNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1", OwnerUserID: "user-1", Name: "Dune Rentals"})
	sub := subscriptionFixture("org-1")
	sub.Status = models.SubscriptionTrialing
	h.addSubscription(sub)
	obj := subscriptionObj("trialing", "price_starter")
	obj["trial_end"] = testNow.Add(72 * time.Hour).Unix()

	h.deliver(t, "evt_tw", "customer.subscription.trial_will_end", obj)

	if len(h.subs.updates) != 0 {
		t.Fatalf("trial_will_end must not change the subscription")
	}
	if len(h.notes.sent) != 1 || h.notes.sent[0].Kind != notify.KindTrialWillEnd || h.notes.sent[0].Data["owner_user_id"] != "user-1" {
		t.Fatalf("unexpected notifications %+v", h.notes.sent)
	}
}

func invoiceObj(id string) map[string]any {
	return map[string]any{
		"id":                 id,
		"customer":           "cus_1",
		"attempt_count":      2,
		"amount_due":         4900,
		"currency":           "usd",
		"hosted_invoice_url": "https://invoice.example/in_1",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
		"lines": map[string]any{"data": []any{
			map[string]any{"period": map[string]any{"end": testNow.Add(30 * 24 * time.Hour).Unix()}},
		}},
	}
}

func TestInvoicePaidIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1"})
	sub := subscriptionFixture("org-1")
	sub.Status = models.SubscriptionPastDue
	h.addSubscription(sub)

	h.deliver(t, "evt_ip1", "invoice.payment_succeeded", invoiceObj("in_1"))
	h.deliver(t, "evt_ip2", "invoice.payment_succeeded", invoiceObj("in_1"))

	if got := h.subs.rows["sub_1"].Status; got != models.SubscriptionActive {
		t.Fatalf("status = %s, want active", got)
	}
	if len(h.subs.updates) != 1 {
		t.Fatalf("updates = %d, want exactly 1", len(h.subs.updates))
	}
	if h.ledger.status("evt_ip2") != models.WebhookEventProcessed {
		t.Fatalf("second delivery should be processed as a no-op")
	}
}

func TestInvoiceWithoutSubscriptionIsIgnored(t *testing.T) {
	h := newHarness(t)

	res := h.deliver(t, "evt_ip", "invoice.payment_succeeded", map[string]any{"id": "in_once"})

	if res.Outcome != OutcomeProcessed || len(h.subs.updates) != 0 {
		t.Fatalf("outcome = %s, updates = %d", res.Outcome, len(h.subs.updates))
	}
}

func TestInvoicePaymentFailedNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1", OwnerUserID: "user-1"})
	h.addSubscription(subscriptionFixture("org-1"))

	h.deliver(t, "evt_if", "invoice.payment_failed", invoiceObj("in_1"))

	if got := h.subs.rows["sub_1"].Status; got != models.SubscriptionPastDue {
		t.Fatalf("status = %s, want past_due", got)
	}
	if len(h.notes.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.notes.sent))
	}
	n := h.notes.sent[0]
	if n.Kind != notify.KindInvoicePaymentFailed || n.OrganizationID != "org-1" || n.Data["hosted_invoice_url"] == "" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestAccountUpdatedDerivesPayoutStatus(t *testing.T) {
	tests := []struct {
		name    string
		charges bool
		payouts bool
		details bool
		want    models.PayoutStatus
	}{
		{"all enabled", true, true, true, models.PayoutEnabled},
		{"charges only", true, false, true, models.PayoutRestricted},
		{"details only", false, false, true, models.PayoutRestricted},
		{"nothing", false, false, false, models.PayoutDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addOrganization(models.Organization{ID: "org-1", StripeConnectAccountID: strPtr("acct_1"), PayoutStatus: models.PayoutDisabled})

			h.deliver(t, "evt_au", "account.updated", map[string]any{
				"id":                "acct_1",
				"charges_enabled":   tt.charges,
				"payouts_enabled":   tt.payouts,
				"details_submitted": tt.details,
			})

			if got := h.orgs.rows["org-1"].PayoutStatus; got != tt.want {
				t.Fatalf("payout = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAccountDeauthorizedDisablesPayouts(t *testing.T) {
	h := newHarness(t)
	h.addOrganization(models.Organization{ID: "org-1", StripeConnectAccountID: strPtr("acct_1"), PayoutStatus: models.PayoutEnabled})

	payload := eventPayload(t, "evt_ad", "account.application.deauthorized", map[string]any{"id": "ca_1", "object": "application"})
	payload = append(payload[:len(payload)-1], []byte(`,"account":"acct_1"}`)...)
	res, err := h.router.Handle(context.Background(), payload, sign(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if res.Outcome != OutcomeProcessed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got := h.orgs.rows["org-1"].PayoutStatus; got != models.PayoutDisabled {
		t.Fatalf("payout = %s, want disabled", got)
	}
}
