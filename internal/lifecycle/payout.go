package lifecycle

import "github.com/PortNumber53/fleetrent/backend/internal/models"

// PayoutStatus derives a connected account's payout capability. Both charges
// and payouts enabled means enabled; any partial progress means restricted.
func PayoutStatus(chargesEnabled, payoutsEnabled, detailsSubmitted bool) models.PayoutStatus {
	switch {
	case chargesEnabled && payoutsEnabled:
		return models.PayoutEnabled
	case chargesEnabled || payoutsEnabled || detailsSubmitted:
		return models.PayoutRestricted
	default:
		return models.PayoutDisabled
	}
}
