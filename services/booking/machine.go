package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/shared_models"
)

type Action string

const (
	ActionCreate          Action = "create"
	ActionSelect          Action = "select"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionCancel          Action = "cancel"
	ActionExpire          Action = "expire"
	ActionConfirm         Action = "confirm"
	ActionPaymentApplied  Action = "payment_applied"
	ActionPaymentFailed   Action = "payment_failed"
	ActionPaymentReversed Action = "payment_reversed"
	ActionRefundSettled   Action = "refund_settled"
)

// PaymentOutcome is the result of applying a settled amount to a booking.
type PaymentOutcome string

const (
	PaymentApplied  PaymentOutcome = "applied"
	PaymentMismatch PaymentOutcome = "mismatch"
	PaymentIgnored  PaymentOutcome = "ignored"
)

func isHost(b *booking_models.Booking, a shared_models.Actor) bool {
	return a.ID != uuid.Nil && a.ID == b.HostID
}

func isClient(b *booking_models.Booking, a shared_models.Actor) bool {
	return a.ID != uuid.Nil && a.ID == b.ClientID
}

// CanView reports whether the actor may read the booking.
func CanView(b *booking_models.Booking, a shared_models.Actor) bool {
	return a.IsAgent() || isHost(b, a) || isClient(b, a)
}

// IsPayable reports whether a provider may charge the booking now.
func IsPayable(b *booking_models.Booking) bool {
	return (b.Status == booking_models.StatusSelected || b.Status == booking_models.StatusApproved) &&
		!b.ProviderPaid && !b.CashSelected
}

func guard(action Action, b *booking_models.Booking, reason string) error {
	return &TransitionError{Action: action, From: b.Status, Reason: reason}
}

func in(s booking_models.Status, allowed ...booking_models.Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

func stamp(b *booking_models.Booking, field **time.Time, now time.Time) {
	t := now
	*field = &t
	b.UpdatedAt = now
}

// Select marks a live pending booking as headed for payment.
func Select(b *booking_models.Booking, actor shared_models.Actor, now time.Time) error {
	if !isHost(b, actor) && !actor.IsAgent() {
		return ErrForbidden
	}
	if b.Status != booking_models.StatusPending {
		return guard(ActionSelect, b, "")
	}
	if b.IsExpired(now) {
		return guard(ActionSelect, b, "the booking hold has expired")
	}
	b.Status = booking_models.StatusSelected
	stamp(b, &b.SelectedAt, now)
	return nil
}

func Approve(b *booking_models.Booking, actor shared_models.Actor, now time.Time) error {
	if !isHost(b, actor) && !actor.IsAgent() {
		return ErrForbidden
	}
	if !in(b.Status, booking_models.StatusPending, booking_models.StatusSelected) {
		return guard(ActionApprove, b, "")
	}
	if b.IsExpired(now) {
		return guard(ActionApprove, b, "the booking hold has expired")
	}
	b.Status = booking_models.StatusApproved
	stamp(b, &b.ApprovedAt, now)
	return nil
}

// Reject is a host decision; the owning client may also withdraw this way.
func Reject(b *booking_models.Booking, actor shared_models.Actor, reason string, now time.Time) error {
	if !isHost(b, actor) && !isClient(b, actor) {
		return ErrForbidden
	}
	if !in(b.Status, booking_models.StatusPending, booking_models.StatusSelected, booking_models.StatusApproved) {
		return guard(ActionReject, b, "")
	}
	if b.ProviderPaid {
		return guard(ActionReject, b, "the booking has a settled payment")
	}
	b.Status = booking_models.StatusRejected
	b.StatusReason = reason
	stamp(b, &b.RejectedAt, now)
	return nil
}

// Cancel is refused once any transaction for the booking has been performed.
func Cancel(b *booking_models.Booking, actor shared_models.Actor, hasPerformed bool, now time.Time) error {
	if !isHost(b, actor) && !isClient(b, actor) {
		return ErrForbidden
	}
	if !in(b.Status, booking_models.StatusPending, booking_models.StatusSelected, booking_models.StatusApproved) {
		return guard(ActionCancel, b, "")
	}
	if hasPerformed || b.ProviderPaid {
		return guard(ActionCancel, b, "a payment for this booking has already been performed")
	}
	b.Status = booking_models.StatusCancelled
	if isClient(b, actor) {
		b.StatusReason = "cancelled_by_client"
	} else {
		b.StatusReason = "cancelled_by_host"
	}
	stamp(b, &b.CancelledAt, now)
	return nil
}

// Expire releases a pending booking whose hold has lapsed.
func Expire(b *booking_models.Booking, now time.Time) error {
	if !b.IsExpired(now) {
		return guard(ActionExpire, b, "the booking hold has not expired")
	}
	b.Status = booking_models.StatusCancelled
	b.StatusReason = "expired"
	stamp(b, &b.CancelledAt, now)
	return nil
}

// Confirm closes an approved booking that is settled by provider payment or cash.
func Confirm(b *booking_models.Booking, actor shared_models.Actor, now time.Time) error {
	if !isHost(b, actor) && !actor.IsAgent() {
		return ErrForbidden
	}
	if b.Status != booking_models.StatusApproved {
		return guard(ActionConfirm, b, "")
	}
	switch {
	case !b.ProviderPaid && !b.CashSelected:
		return guard(ActionConfirm, b, "no payment has been recorded")
	case b.RefundPending:
		return guard(ActionConfirm, b, "a refund is pending")
	case b.NeedsReview:
		return guard(ActionConfirm, b, "the booking is flagged for review")
	}
	b.Status = booking_models.StatusConfirmed
	stamp(b, &b.ConfirmedAt, now)
	return nil
}

// ApplyPayment records the settled total. Anything other than the expected final
// total flags the booking for review and leaves its status alone.
func ApplyPayment(b *booking_models.Booking, settled int64, now time.Time) (PaymentOutcome, error) {
	if b.ProviderPaid {
		return PaymentIgnored, nil
	}
	if !in(b.Status, booking_models.StatusSelected, booking_models.StatusApproved) {
		return "", guard(ActionPaymentApplied, b, "the booking is not awaiting payment")
	}

	b.PaidAmount = settled
	b.UpdatedAt = now
	if settled != b.FinalTotal {
		b.NeedsReview = true
		b.ReviewNote = fmt.Sprintf("settled amount %d does not match final total %d", settled, b.FinalTotal)
		return PaymentMismatch, nil
	}

	b.ProviderPaid = true
	stamp(b, &b.PaidAt, now)
	if b.Status != booking_models.StatusApproved {
		b.Status = booking_models.StatusApproved
		stamp(b, &b.ApprovedAt, now)
	}
	return PaymentApplied, nil
}

// FailPayment rejects an unpaid booking after its transaction was cancelled before
// completion. It reports false when there was nothing to fail.
func FailPayment(b *booking_models.Booking, now time.Time) bool {
	if b.ProviderPaid || !in(b.Status, booking_models.StatusSelected, booking_models.StatusApproved) {
		return false
	}
	b.Status = booking_models.StatusRejected
	b.StatusReason = "payment_failed"
	stamp(b, &b.RejectedAt, now)
	return true
}

// ReversePayment marks a refund obligation. The paid flag stays until SettleRefund.
func ReversePayment(b *booking_models.Booking, now time.Time) bool {
	if !b.ProviderPaid || b.RefundPending {
		return false
	}
	b.RefundPending = true
	b.UpdatedAt = now
	return true
}

// SettleRefund is the explicit refund step: it clears the paid flag and releases
// the slot.
func SettleRefund(b *booking_models.Booking, actor shared_models.Actor, now time.Time) error {
	if !actor.IsAgent() {
		return ErrForbidden
	}
	if !b.RefundPending {
		return guard(ActionRefundSettled, b, "no refund is pending")
	}
	b.ProviderPaid = false
	b.PaidAmount = 0
	b.RefundPending = false
	b.UpdatedAt = now
	if !b.Status.IsTerminal() {
		b.Status = booking_models.StatusCancelled
		b.StatusReason = "refunded"
		stamp(b, &b.CancelledAt, now)
	}
	return nil
}
