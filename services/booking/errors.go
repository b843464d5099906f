package booking

import (
	"errors"
	"fmt"

	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/services/availability"
)

var (
	ErrNotFound       = booking_models.ErrBookingNotFound
	ErrForbidden      = errors.New("not allowed to change this booking")
	ErrInvalidRequest = errors.New("invalid booking request")
)

// ConflictError reports a refused admission. It is an expected outcome, not a fault.
type ConflictError struct {
	Decision availability.Decision
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot unavailable: %s (slot %d)", e.Decision.Reason, e.Decision.SlotIndex)
}

// TransitionError is a state machine guard failure.
type TransitionError struct {
	Action Action
	From   booking_models.Status
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s a booking in status %s", e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
