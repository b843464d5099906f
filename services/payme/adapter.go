package payme

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/ledger"
	"github.com/joy095/roomslot/services/reconciliation"
)

const DefaultTxTimeout = 12 * time.Hour

type Options struct {
	// TxTimeout is how long a created transaction may wait to be performed.
	TxTimeout time.Duration
}

// Adapter implements Handler on top of the ledger and the reconciliation service.
type Adapter struct {
	store     repository.Store
	ledger    *ledger.Ledger
	recon     *reconciliation.Service
	publisher events.Publisher
	timeout   time.Duration
}

func NewAdapter(store repository.Store, l *ledger.Ledger, recon *reconciliation.Service, publisher events.Publisher, opts Options) *Adapter {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	return &Adapter{
		store:     store,
		ledger:    l,
		recon:     recon,
		publisher: publisher,
		timeout:   opts.TxTimeout,
	}
}

var _ Handler = (*Adapter)(nil)

func millis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// unitFunc returns a protocol error to reply with after the unit commits, or an
// error to roll the unit back.
type unitFunc func(ctx context.Context, tx repository.Tx) (*Error, error)

func (a *Adapter) inTx(ctx context.Context, method string, fn unitFunc) *Error {
	var reply *Error
	var evs []events.Event
	err := a.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		reply, err = fn(withCollector(ctx, &evs), tx)
		return err
	})
	if err != nil {
		return a.mapError(method, err)
	}
	events.PublishAfterCommit(ctx, a.publisher, evs)
	return reply
}

func (a *Adapter) view(ctx context.Context, method string, fn unitFunc) *Error {
	var reply *Error
	err := a.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		reply, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		return a.mapError(method, err)
	}
	return reply
}

func (a *Adapter) mapError(method string, err error) *Error {
	var perr *Error
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, ptm.ErrLiveTransaction):
		return errAnotherTransaction()
	case errors.Is(err, booking_models.ErrBookingNotFound):
		return errBookingNotFound()
	case errors.Is(err, ptm.ErrTransactionNotFound):
		return errTransactionNotFound()
	}
	logger.ErrorLogger.Errorf("payme %s failed: %v", method, err)
	return errInternal()
}

type collectorKey struct{}

func withCollector(ctx context.Context, evs *[]events.Event) context.Context {
	return context.WithValue(ctx, collectorKey{}, evs)
}

func collect(ctx context.Context, res reconciliation.Result) {
	if evs, ok := ctx.Value(collectorKey{}).(*[]events.Event); ok {
		*evs = append(*evs, res.Events...)
	}
}

// payable checks that the booking accepts a provider payment of amount.
func payable(b *booking_models.Booking, amount int64) *Error {
	if b.ProviderPaid {
		return errBookingNotPayable("The booking is already paid")
	}
	if !booking.IsPayable(b) {
		return errBookingNotPayable("The booking is not awaiting payment")
	}
	if amount != b.FinalTotal {
		return errInvalidAmount()
	}
	return nil
}

func (a *Adapter) CheckPerformTransaction(ctx context.Context, p CheckPerformTransactionParams) (*CheckPerformTransactionResult, *Error) {
	perr := a.view(ctx, MethodCheckPerformTransaction, func(ctx context.Context, tx repository.Tx) (*Error, error) {
		b, err := tx.GetBookingByRef(ctx, p.Account.BookingRef)
		if err != nil {
			return nil, err
		}
		if perr := payable(b, p.Amount); perr != nil {
			return perr, nil
		}
		live, err := a.ledger.LiveForBooking(ctx, tx, b.ID)
		if err != nil {
			return nil, err
		}
		if live != nil {
			return errAnotherTransaction(), nil
		}
		return nil, nil
	})
	if perr != nil {
		return nil, perr
	}
	return &CheckPerformTransactionResult{Allow: true}, nil
}

func (a *Adapter) CreateTransaction(ctx context.Context, p CreateTransactionParams) (*CreateTransactionResult, *Error) {
	var res *CreateTransactionResult
	perr := a.inTx(ctx, MethodCreateTransaction, func(ctx context.Context, tx repository.Tx) (*Error, error) {
		t, err := a.ledger.Find(ctx, tx, ptm.ProviderPayme, p.ID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			b, err := tx.GetBookingByRef(ctx, p.Account.BookingRef)
			if err != nil {
				return nil, err
			}
			if perr := payable(b, p.Amount); perr != nil {
				return perr, nil
			}
			live, err := a.ledger.LiveForBooking(ctx, tx, b.ID)
			if err != nil {
				return nil, err
			}
			if live != nil {
				return errAnotherTransaction(), nil
			}

			payload, _ := json.Marshal(p)
			opened, err := a.ledger.Open(ctx, tx, ledger.OpenParams{
				Provider:     ptm.ProviderPayme,
				ProviderTxID: p.ID,
				AccountRef:   p.Account.BookingRef,
				BookingID:    b.ID,
				ClientID:     b.ClientID,
				Amount:       p.Amount,
				Currency:     b.Currency,
				ProviderTime: time.UnixMilli(p.Time).UTC(),
				Payload:      payload,
			})
			if err != nil {
				return nil, err
			}
			t = opened.Transaction
			if !opened.Duplicate {
				logger.InfoLogger.Infof("payme transaction %s created for booking %s", p.ID, b.RequestRef)
				res = createResult(t)
				return nil, nil
			}
		}

		// A repeated create must carry the same data as the stored row.
		if t.AccountRef != p.Account.BookingRef || t.Amount != p.Amount {
			return errConflictingData(), nil
		}
		if t.State != ptm.StateCreated {
			return errUnableToPerform("The transaction is not in the created state"), nil
		}
		if t.IsTimedOut(a.ledger.Now(), a.timeout) {
			if err := a.cancelCreated(ctx, tx, t, ReasonTimeout); err != nil {
				return nil, err
			}
			return errUnableToPerform("The transaction timed out"), nil
		}
		res = createResult(t)
		return nil, nil
	})
	if perr != nil {
		return nil, perr
	}
	return res, nil
}

func (a *Adapter) PerformTransaction(ctx context.Context, p PerformTransactionParams) (*PerformTransactionResult, *Error) {
	var res *PerformTransactionResult
	perr := a.inTx(ctx, MethodPerformTransaction, func(ctx context.Context, tx repository.Tx) (*Error, error) {
		t, err := tx.GetTransaction(ctx, ptm.ProviderPayme, p.ID)
		if err != nil {
			return nil, err
		}

		switch t.State {
		case ptm.StatePerformed:
			// Repeated perform; a row left unreconciled is applied now.
			if t.ReconciledAt == nil {
				r, err := a.recon.ApplySettlement(ctx, tx, t)
				if err != nil {
					return nil, err
				}
				collect(ctx, r)
			}
			res = performResult(t)
			return nil, nil
		case ptm.StateCreated:
		default:
			return errUnableToPerform("The transaction is cancelled"), nil
		}

		if t.IsTimedOut(a.ledger.Now(), a.timeout) {
			if err := a.cancelCreated(ctx, tx, t, ReasonTimeout); err != nil {
				return nil, err
			}
			return errUnableToPerform("The transaction timed out"), nil
		}

		b, err := tx.GetBooking(ctx, t.BookingID)
		if err != nil {
			return nil, err
		}
		if !booking.IsPayable(b) {
			logger.WarnLogger.Warnf("payme perform %s refused: booking %s is %s", t.ProviderTxID, b.ID, b.Status)
			if err := a.cancelCreated(ctx, tx, t, ReasonExecutionFailed); err != nil {
				return nil, err
			}
			return errUnableToPerform("The booking is no longer awaiting payment"), nil
		}

		if _, err := a.ledger.Perform(ctx, tx, t); err != nil {
			return nil, err
		}
		r, err := a.recon.ApplySettlement(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		collect(ctx, r)
		res = performResult(t)
		return nil, nil
	})
	if perr != nil {
		return nil, perr
	}
	return res, nil
}

func (a *Adapter) CancelTransaction(ctx context.Context, p CancelTransactionParams) (*CancelTransactionResult, *Error) {
	var res *CancelTransactionResult
	perr := a.inTx(ctx, MethodCancelTransaction, func(ctx context.Context, tx repository.Tx) (*Error, error) {
		t, err := tx.GetTransaction(ctx, ptm.ProviderPayme, p.ID)
		if err != nil {
			return nil, err
		}

		if t.State == ptm.StatePerformed {
			b, err := tx.GetBooking(ctx, t.BookingID)
			if err != nil {
				return nil, err
			}
			if b.Status == booking_models.StatusConfirmed {
				return errUnableToCancel(), nil
			}
		}

		changed, err := a.ledger.Cancel(ctx, tx, t, p.Reason)
		if err != nil {
			return nil, err
		}
		if changed {
			var r reconciliation.Result
			if t.State == ptm.StateCancelledAfterPerform {
				r, err = a.recon.ApplyReversal(ctx, tx, t)
			} else {
				r, err = a.recon.ApplyFailure(ctx, tx, t)
			}
			if err != nil {
				return nil, err
			}
			collect(ctx, r)
		}
		res = &CancelTransactionResult{
			Transaction: t.ID.String(),
			CancelTime:  millis(t.CancelledAt),
			State:       int(t.State),
		}
		return nil, nil
	})
	if perr != nil {
		return nil, perr
	}
	return res, nil
}

func (a *Adapter) CheckTransaction(ctx context.Context, p CheckTransactionParams) (*CheckTransactionResult, *Error) {
	var res *CheckTransactionResult
	perr := a.view(ctx, MethodCheckTransaction, func(ctx context.Context, tx repository.Tx) (*Error, error) {
		t, err := tx.GetTransaction(ctx, ptm.ProviderPayme, p.ID)
		if err != nil {
			return nil, err
		}
		res = &CheckTransactionResult{
			CreateTime:  t.ProviderTime.UnixMilli(),
			PerformTime: millis(t.PerformedAt),
			CancelTime:  millis(t.CancelledAt),
			Transaction: t.ID.String(),
			State:       int(t.State),
			Reason:      t.CancelReason,
		}
		return nil, nil
	})
	if perr != nil {
		return nil, perr
	}
	return res, nil
}

func (a *Adapter) GetStatement(ctx context.Context, p GetStatementParams) (*GetStatementResult, *Error) {
	res := &GetStatementResult{Transactions: []StatementEntry{}}
	perr := a.view(ctx, MethodGetStatement, func(ctx context.Context, tx repository.Tx) (*Error, error) {
		rows, err := a.ledger.Statement(ctx, tx, ptm.ProviderPayme, time.UnixMilli(p.From).UTC(), time.UnixMilli(p.To).UTC())
		if err != nil {
			return nil, err
		}
		for _, t := range rows {
			res.Transactions = append(res.Transactions, StatementEntry{
				ID:          t.ProviderTxID,
				Time:        t.ProviderTime.UnixMilli(),
				Amount:      t.Amount,
				Account:     Account{BookingRef: t.AccountRef},
				CreateTime:  t.ProviderTime.UnixMilli(),
				PerformTime: millis(t.PerformedAt),
				CancelTime:  millis(t.CancelledAt),
				Transaction: t.ID.String(),
				State:       int(t.State),
				Reason:      t.CancelReason,
			})
		}
		return nil, nil
	})
	if perr != nil {
		return nil, perr
	}
	return res, nil
}

func (a *Adapter) cancelCreated(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction, reason int) error {
	changed, err := a.ledger.Cancel(ctx, tx, t, reason)
	if err != nil || !changed {
		return err
	}
	r, err := a.recon.ApplyFailure(ctx, tx, t)
	if err != nil {
		return err
	}
	collect(ctx, r)
	return nil
}

func createResult(t *ptm.PaymentTransaction) *CreateTransactionResult {
	return &CreateTransactionResult{
		CreateTime:  t.ProviderTime.UnixMilli(),
		Transaction: t.ID.String(),
		State:       int(t.State),
	}
}

func performResult(t *ptm.PaymentTransaction) *PerformTransactionResult {
	return &PerformTransactionResult{
		Transaction: t.ID.String(),
		PerformTime: millis(t.PerformedAt),
		State:       int(t.State),
	}
}
