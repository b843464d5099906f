// Package reconciliation applies ledger outcomes to bookings. It runs inside the
// same unit of work as the ledger transition that triggered it.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/ledger"
)

type Service struct {
	ledger *ledger.Ledger
}

func NewService(l *ledger.Ledger) *Service {
	return &Service{ledger: l}
}

// Result carries the booking after reconciliation and the events to publish once
// the unit commits.
type Result struct {
	Outcome booking.PaymentOutcome
	Booking *booking_models.Booking
	Events  []events.Event
}

// ApplySettlement credits a performed transaction to its booking exactly once.
// A settled total that differs from the booking's final total flags the booking
// for review instead of marking it paid.
func (s *Service) ApplySettlement(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction) (Result, error) {
	if t.State != ptm.StatePerformed {
		return Result{}, fmt.Errorf("%w: cannot settle a %s transaction", ptm.ErrInvalidTransition, t.State)
	}
	b, err := tx.GetBooking(ctx, t.BookingID)
	if err != nil {
		return Result{}, err
	}
	if t.ReconciledAt != nil {
		return Result{Outcome: booking.PaymentIgnored, Booking: b}, nil
	}

	now := s.ledger.Now()
	settled, err := s.ledger.PerformedTotal(ctx, tx, b.ID)
	if err != nil {
		return Result{}, err
	}

	from := b.Status
	outcome, err := booking.ApplyPayment(b, settled, now)
	if err != nil {
		var te *booking.TransitionError
		if !errors.As(err, &te) {
			return Result{}, err
		}
		// Money arrived for a booking that left the payable states.
		outcome = booking.PaymentMismatch
		b.PaidAmount = settled
		b.NeedsReview = true
		b.ReviewNote = fmt.Sprintf("payment of %d settled while booking was %s", settled, b.Status)
		b.UpdatedAt = now
	}

	res := Result{Outcome: outcome, Booking: b}
	switch outcome {
	case booking.PaymentApplied:
		logger.InfoLogger.Infof("Booking %s paid in full via %s transaction %s", b.ID, t.Provider, t.ProviderTxID)
		res.Events = append(res.Events, events.ForBooking(events.TypeBookingTransitioned, string(booking.ActionPaymentApplied), b, from, now))
	case booking.PaymentMismatch:
		logger.WarnLogger.Warnf("Booking %s flagged for review: %s", b.ID, b.ReviewNote)
		ev := events.ForBooking(events.TypeBookingReviewRequired, string(booking.ActionPaymentApplied), b, from, now)
		ev.Data = map[string]string{
			"provider":       string(t.Provider),
			"provider_tx_id": t.ProviderTxID,
			"note":           b.ReviewNote,
		}
		res.Events = append(res.Events, ev)
	}

	if err := tx.UpdateBooking(ctx, b); err != nil {
		return Result{}, err
	}
	stamped := now
	t.ReconciledAt = &stamped
	if err := tx.UpdateTransaction(ctx, t); err != nil {
		return Result{}, err
	}
	return res, nil
}

// ApplyFailure rejects the booking after its transaction was cancelled before it
// was performed.
func (s *Service) ApplyFailure(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction) (Result, error) {
	b, err := tx.GetBooking(ctx, t.BookingID)
	if err != nil {
		return Result{}, err
	}
	now := s.ledger.Now()
	from := b.Status
	if !booking.FailPayment(b, now) {
		return Result{Outcome: booking.PaymentIgnored, Booking: b}, nil
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return Result{}, err
	}
	logger.InfoLogger.Infof("Booking %s rejected after %s transaction %s was cancelled", b.ID, t.Provider, t.ProviderTxID)
	return Result{
		Outcome: booking.PaymentApplied,
		Booking: b,
		Events:  []events.Event{events.ForBooking(events.TypeBookingTransitioned, string(booking.ActionPaymentFailed), b, from, now)},
	}, nil
}

// ApplyReversal records the refund owed after a performed transaction was
// cancelled. The booking keeps its paid flag until the refund is settled.
func (s *Service) ApplyReversal(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction) (Result, error) {
	b, err := tx.GetBooking(ctx, t.BookingID)
	if err != nil {
		return Result{}, err
	}
	now := s.ledger.Now()
	if !booking.ReversePayment(b, now) {
		return Result{Outcome: booking.PaymentIgnored, Booking: b}, nil
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return Result{}, err
	}
	logger.WarnLogger.Warnf("Refund of %d owed on booking %s after %s transaction %s was reversed", t.Amount, b.ID, t.Provider, t.ProviderTxID)

	ev := events.ForBooking(events.TypePaymentRefundRequired, string(booking.ActionPaymentReversed), b, b.Status, now)
	ev.Data = map[string]string{
		"provider":       string(t.Provider),
		"provider_tx_id": t.ProviderTxID,
		"amount":         fmt.Sprintf("%d", t.Amount),
	}
	return Result{Outcome: booking.PaymentApplied, Booking: b, Events: []events.Event{ev}}, nil
}

// Repair re-applies performed transactions in [from, to] that were never
// reconciled. It returns how many bookings it touched.
func (s *Service) Repair(ctx context.Context, store repository.Store, publisher events.Publisher, provider ptm.Provider, from, to time.Time) (int, error) {
	var evs []events.Event
	repaired := 0
	err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := s.ledger.Statement(ctx, tx, provider, from, to)
		if err != nil {
			return err
		}
		for i := range rows {
			t := &rows[i]
			if t.State != ptm.StatePerformed || t.ReconciledAt != nil {
				continue
			}
			res, err := s.ApplySettlement(ctx, tx, t)
			if err != nil {
				return fmt.Errorf("failed to reconcile %s transaction %s: %w", t.Provider, t.ProviderTxID, err)
			}
			repaired++
			evs = append(evs, res.Events...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	events.PublishAfterCommit(ctx, publisher, evs)
	if repaired > 0 {
		logger.WarnLogger.Warnf("Reconciled %d %s transaction(s) that had been left unapplied", repaired, provider)
	}
	return repaired, nil
}
