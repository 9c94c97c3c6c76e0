package lifecycle

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"github.com/PortNumber53/fleetrent/backend/internal/models"
)

// SubscriptionTrigger names a provider-driven subscription transition.
type SubscriptionTrigger string

const (
	// SubscriptionSync applies the provider's own status (created/updated).
	SubscriptionSync    SubscriptionTrigger = "sync"
	SubscriptionDeleted SubscriptionTrigger = "deleted"
	SubscriptionPaused  SubscriptionTrigger = "paused"
	SubscriptionResumed SubscriptionTrigger = "resumed"
	SubscriptionPaid    SubscriptionTrigger = "invoice_paid"
	SubscriptionPastDue SubscriptionTrigger = "invoice_failed"
)

// subscriptionRule has an empty target when the target is supplied by the
// caller (a mapped provider status).
type subscriptionRule struct {
	from   mapset.Set[models.SubscriptionStatus]
	target models.SubscriptionStatus
}

var allSubscriptionStatuses = []models.SubscriptionStatus{
	models.SubscriptionActive,
	models.SubscriptionTrialing,
	models.SubscriptionPastDue,
	models.SubscriptionCanceled,
	models.SubscriptionIncomplete,
	models.SubscriptionPaused,
	models.SubscriptionUnpaid,
}

// notCanceled is every status except canceled, which is terminal.
var notCanceled = mapset.NewSet(lo.Without(allSubscriptionStatuses, models.SubscriptionCanceled)...)

var subscriptionTable = map[SubscriptionTrigger]subscriptionRule{
	SubscriptionSync:    {from: notCanceled},
	SubscriptionDeleted: {from: notCanceled, target: models.SubscriptionCanceled},
	SubscriptionPaused: {
		from:   mapset.NewSet(models.SubscriptionActive, models.SubscriptionTrialing, models.SubscriptionPastDue, models.SubscriptionUnpaid),
		target: models.SubscriptionPaused,
	},
	SubscriptionResumed: {
		from:   mapset.NewSet(models.SubscriptionPaused),
		target: models.SubscriptionActive,
	},
	SubscriptionPaid: {
		from:   mapset.NewSet(models.SubscriptionTrialing, models.SubscriptionPastDue, models.SubscriptionIncomplete, models.SubscriptionUnpaid),
		target: models.SubscriptionActive,
	},
	SubscriptionPastDue: {
		from:   mapset.NewSet(models.SubscriptionActive, models.SubscriptionTrialing, models.SubscriptionIncomplete),
		target: models.SubscriptionPastDue,
	},
}

// NextSubscription returns the status trigger moves current to. supplied is
// used only by triggers without a fixed target. Re-applying the current
// status is a no-op and always allowed.
func NextSubscription(trigger SubscriptionTrigger, current, supplied models.SubscriptionStatus) (models.SubscriptionStatus, error) {
	rule, ok := subscriptionTable[trigger]
	if !ok {
		return current, notAllowed("subscription", string(trigger), string(current))
	}
	target := rule.target
	if target == "" {
		target = supplied
	}
	if target == "" {
		return current, notAllowed("subscription", string(trigger), string(current))
	}
	if current == target || rule.from.Contains(current) {
		return target, nil
	}
	return current, notAllowed("subscription", string(trigger), string(current))
}

// MapProviderStatus converts a provider subscription status to the local
// enum. incomplete_expired has no local equivalent and collapses to canceled.
func MapProviderStatus(status string) (models.SubscriptionStatus, bool) {
	if status == "incomplete_expired" {
		return models.SubscriptionCanceled, true
	}
	s := models.SubscriptionStatus(status)
	return s, lo.Contains(allSubscriptionStatuses, s)
}
