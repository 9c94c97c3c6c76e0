// Package lifecycle holds the explicit state tables for bookings, booking
// payments and subscriptions. Handlers ask these tables for the next status
// instead of writing whatever a provider event implies.
package lifecycle

import (
	"errors"
	"fmt"
)

// ErrTransitionNotAllowed is returned when the current status does not permit
// the requested transition. The caller must leave the row untouched.
var ErrTransitionNotAllowed = errors.New("lifecycle: transition not allowed")

func notAllowed(kind, trigger, from string) error {
	return fmt.Errorf("%w: %s %q from %q", ErrTransitionNotAllowed, kind, trigger, from)
}
