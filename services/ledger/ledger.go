// Package ledger records provider transactions. One row exists per
// (provider, provider transaction id); repeated calls with the same key return the
// stored row instead of writing a new one.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/logger"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/repository"
)

type Ledger struct {
	now func() time.Time
}

func New(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{now: clock}
}

// Now is the ledger clock, shared with the adapters so timeouts and stamps agree.
func (l *Ledger) Now() time.Time { return l.now() }

type OpenParams struct {
	Provider     ptm.Provider
	ProviderTxID string
	AccountRef   string
	BookingID    uuid.UUID
	ClientID     uuid.UUID
	Amount       int64
	Currency     string
	ProviderTime time.Time
	Payload      []byte
}

type OpenResult struct {
	Transaction *ptm.PaymentTransaction
	// Duplicate is set when the row already existed; the caller must answer from it.
	Duplicate bool
}

// Open creates the row in the created state or returns the existing one. It fails
// with ErrLiveTransaction when another key already holds the booking.
func (l *Ledger) Open(ctx context.Context, tx repository.Tx, p OpenParams) (OpenResult, error) {
	if p.ProviderTxID == "" {
		return OpenResult{}, fmt.Errorf("provider transaction id is required")
	}

	existing, err := l.Find(ctx, tx, p.Provider, p.ProviderTxID)
	if err != nil {
		return OpenResult{}, err
	}
	if existing != nil {
		return OpenResult{Transaction: existing, Duplicate: true}, nil
	}

	t, err := ptm.NewPaymentTransaction(p.Provider, p.ProviderTxID, p.AccountRef, p.BookingID, p.ClientID, p.Amount, p.Currency, p.ProviderTime, l.now())
	if err != nil {
		return OpenResult{}, err
	}
	t.Payload = p.Payload

	inserted, err := tx.InsertTransaction(ctx, t)
	if err != nil {
		return OpenResult{}, err
	}
	if !inserted {
		// Lost a race with a concurrent call for the same key.
		winner, err := tx.GetTransaction(ctx, p.Provider, p.ProviderTxID)
		if err != nil {
			return OpenResult{}, err
		}
		return OpenResult{Transaction: winner, Duplicate: true}, nil
	}
	return OpenResult{Transaction: t}, nil
}

// Find returns the row for a key, or nil when there is none.
func (l *Ledger) Find(ctx context.Context, tx repository.Tx, provider ptm.Provider, providerTxID string) (*ptm.PaymentTransaction, error) {
	t, err := tx.GetTransaction(ctx, provider, providerTxID)
	if errors.Is(err, ptm.ErrTransactionNotFound) {
		return nil, nil
	}
	return t, err
}

// Perform moves the row to performed. changed is false when it already was.
func (l *Ledger) Perform(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction) (bool, error) {
	changed, err := t.Perform(l.now())
	if err != nil || !changed {
		return false, err
	}
	if err := tx.UpdateTransaction(ctx, t); err != nil {
		return false, err
	}
	logger.InfoLogger.Infof("Ledger: %s transaction %s performed for booking %s", t.Provider, t.ProviderTxID, t.BookingID)
	return true, nil
}

// Cancel moves the row to cancelled or cancelled-after-perform. changed is false
// when it was already cancelled.
func (l *Ledger) Cancel(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction, reason int) (bool, error) {
	changed, err := t.Cancel(reason, l.now())
	if err != nil || !changed {
		return false, err
	}
	if err := tx.UpdateTransaction(ctx, t); err != nil {
		return false, err
	}
	logger.InfoLogger.Infof("Ledger: %s transaction %s cancelled (%s, reason %d)", t.Provider, t.ProviderTxID, t.State, reason)
	return true, nil
}

// LiveForBooking returns the created or performed row holding the booking, if any.
func (l *Ledger) LiveForBooking(ctx context.Context, tx repository.Tx, bookingID uuid.UUID) (*ptm.PaymentTransaction, error) {
	txs, err := tx.ListTransactionsByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		if txs[i].State.IsLive() {
			return &txs[i], nil
		}
	}
	return nil, nil
}

// PerformedTotal sums the amounts of the booking's performed rows.
func (l *Ledger) PerformedTotal(ctx context.Context, tx repository.Tx, bookingID uuid.UUID) (int64, error) {
	txs, err := tx.ListTransactionsByBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, t := range txs {
		if t.State == ptm.StatePerformed {
			total += t.Amount
		}
	}
	return total, nil
}

// Statement lists a provider's rows with provider time in [from, to] in that order.
func (l *Ledger) Statement(ctx context.Context, tx repository.Tx, provider ptm.Provider, from, to time.Time) ([]ptm.PaymentTransaction, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("statement range ends before it starts")
	}
	return tx.ListTransactions(ctx, provider, from, to)
}
