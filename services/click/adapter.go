package click

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"

	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/ledger"
	"github.com/joy095/roomslot/services/reconciliation"
)

type Options struct {
	ServiceID int
	SecretKey string
}

type Adapter struct {
	store     repository.Store
	ledger    *ledger.Ledger
	recon     *reconciliation.Service
	publisher events.Publisher
	serviceID int
	secret    string
}

func NewAdapter(store repository.Store, l *ledger.Ledger, recon *reconciliation.Service, publisher events.Publisher, opts Options) *Adapter {
	return &Adapter{
		store:     store,
		ledger:    l,
		recon:     recon,
		publisher: publisher,
		serviceID: opts.ServiceID,
		secret:    opts.SecretKey,
	}
}

// Handle answers one webhook call. The signature is checked before the ledger is read.
func (a *Adapter) Handle(ctx context.Context, form url.Values) (resp Response) {
	req := RequestFromForm(form)
	resp = Response{MerchantTransID: req.MerchantTransID}
	resp.ClickTransID, _ = strconv.ParseInt(req.ClickTransID, 10, 64)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorLogger.Errorf("click handler panic: %v", r)
			resp = fail(resp, CodeFailedToUpdate)
		}
	}()

	if a.secret == "" || !VerifySignature(req, a.secret) {
		logger.WarnLogger.Warnf("[SECURITY] click signature check failed for click_trans_id=%q merchant_trans_id=%q", req.ClickTransID, req.MerchantTransID)
		return fail(resp, CodeSignFailed)
	}

	p, err := parse(req)
	if err != nil {
		logger.InfoLogger.Infof("click request rejected: %v", err)
		return fail(resp, CodeBadRequest)
	}
	if p.serviceID != a.serviceID {
		logger.WarnLogger.Warnf("click request for service %d, expected %d", p.serviceID, a.serviceID)
		return fail(resp, CodeBadRequest)
	}

	switch p.action {
	case ActionPrepare:
		return a.prepare(ctx, req, p, resp)
	case ActionComplete:
		return a.complete(ctx, req, p, resp)
	default:
		return fail(resp, CodeActionNotFound)
	}
}

// Busy answers a call that is refused before the signature is checked, e.g. when
// throttled. Nothing is written, so the provider may retry it.
func Busy(form url.Values) Response {
	req := RequestFromForm(form)
	resp := Response{MerchantTransID: req.MerchantTransID}
	resp.ClickTransID, _ = strconv.ParseInt(req.ClickTransID, 10, 64)
	return fail(resp, CodeFailedToUpdate)
}

func fail(resp Response, code int) Response {
	resp.MerchantPrepareID = 0
	resp.MerchantConfirmID = 0
	resp.Error = code
	resp.ErrorNote = note(code)
	return resp
}

func ok(resp Response) Response {
	resp.Error = CodeSuccess
	resp.ErrorNote = note(CodeSuccess)
	return resp
}

// unit runs fn and publishes the events it collected once the unit commits. fn
// returns either a code to reply with after commit or an error to roll back.
func (a *Adapter) unit(ctx context.Context, resp *Response, fn func(ctx context.Context, tx repository.Tx, evs *[]events.Event) (int, error)) int {
	var code int
	var evs []events.Event
	err := a.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		code, err = fn(ctx, tx, &evs)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, booking_models.ErrBookingNotFound):
			return CodeBookingNotFound
		case errors.Is(err, ptm.ErrTransactionNotFound):
			return CodeTransactionNotFound
		case errors.Is(err, ptm.ErrLiveTransaction):
			logger.InfoLogger.Infof("click transaction %d refused: booking %s has another live transaction", resp.ClickTransID, resp.MerchantTransID)
			return CodeBadRequest
		}
		logger.ErrorLogger.Errorf("click request %d failed: %v", resp.ClickTransID, err)
		return CodeFailedToUpdate
	}
	events.PublishAfterCommit(ctx, a.publisher, evs)
	return code
}

func bookingCode(b *booking_models.Booking, amount int64) int {
	switch {
	case b.ProviderPaid || b.Status == booking_models.StatusConfirmed:
		return CodeAlreadyPaid
	case b.Status.IsTerminal():
		return CodeCancelled
	case !booking.IsPayable(b):
		return CodeBadRequest
	case amount != b.FinalTotal:
		return CodeIncorrectAmount
	}
	return CodeSuccess
}

func (a *Adapter) prepare(ctx context.Context, req Request, p parsed, resp Response) Response {
	var prepareID int64
	code := a.unit(ctx, &resp, func(ctx context.Context, tx repository.Tx, evs *[]events.Event) (int, error) {
		t, err := a.ledger.Find(ctx, tx, ptm.ProviderClick, req.ClickTransID)
		if err != nil {
			return 0, err
		}
		if t == nil {
			b, err := tx.GetBookingByRef(ctx, req.MerchantTransID)
			if err != nil {
				return 0, err
			}
			if code := bookingCode(b, p.amount); code != CodeSuccess {
				return code, nil
			}
			payload, _ := json.Marshal(req.Form())
			opened, err := a.ledger.Open(ctx, tx, ledger.OpenParams{
				Provider:     ptm.ProviderClick,
				ProviderTxID: req.ClickTransID,
				AccountRef:   req.MerchantTransID,
				BookingID:    b.ID,
				ClientID:     b.ClientID,
				Amount:       p.amount,
				Currency:     b.Currency,
				Payload:      payload,
			})
			if err != nil {
				return 0, err
			}
			t = opened.Transaction
			if !opened.Duplicate {
				logger.InfoLogger.Infof("click transaction %s prepared for booking %s (prepare id %d)", req.ClickTransID, b.RequestRef, t.Seq)
			}
		}

		if t.AccountRef != req.MerchantTransID {
			return CodeBadRequest, nil
		}
		if t.Amount != p.amount {
			return CodeIncorrectAmount, nil
		}
		if !t.State.IsLive() {
			return CodeCancelled, nil
		}
		prepareID = t.Seq
		return CodeSuccess, nil
	})
	if code != CodeSuccess {
		return fail(resp, code)
	}
	resp.MerchantPrepareID = prepareID
	return ok(resp)
}

func (a *Adapter) complete(ctx context.Context, req Request, p parsed, resp Response) Response {
	var prepareID, confirmID int64
	code := a.unit(ctx, &resp, func(ctx context.Context, tx repository.Tx, evs *[]events.Event) (int, error) {
		t, err := tx.GetTransaction(ctx, ptm.ProviderClick, req.ClickTransID)
		if err != nil {
			return 0, err
		}
		if t.Seq != p.prepareID || t.AccountRef != req.MerchantTransID {
			return CodeTransactionNotFound, nil
		}
		if t.Amount != p.amount {
			return CodeIncorrectAmount, nil
		}
		prepareID = t.Seq

		if p.errorCode < 0 {
			return a.cancel(ctx, tx, t, p.errorCode, evs)
		}

		switch t.State {
		case ptm.StatePerformed:
			if t.ReconciledAt == nil {
				r, err := a.recon.ApplySettlement(ctx, tx, t)
				if err != nil {
					return 0, err
				}
				*evs = append(*evs, r.Events...)
			}
			confirmID = t.Seq
			return CodeSuccess, nil
		case ptm.StateCreated:
		default:
			return CodeCancelled, nil
		}

		b, err := tx.GetBooking(ctx, t.BookingID)
		if err != nil {
			return 0, err
		}
		if !booking.IsPayable(b) {
			logger.WarnLogger.Warnf("click complete %s refused: booking %s is %s", t.ProviderTxID, b.ID, b.Status)
			return a.cancel(ctx, tx, t, CodeCancelled, evs)
		}

		if _, err := a.ledger.Perform(ctx, tx, t); err != nil {
			return 0, err
		}
		r, err := a.recon.ApplySettlement(ctx, tx, t)
		if err != nil {
			return 0, err
		}
		*evs = append(*evs, r.Events...)
		confirmID = t.Seq
		return CodeSuccess, nil
	})
	if code != CodeSuccess {
		return fail(resp, code)
	}
	resp.MerchantPrepareID = prepareID
	resp.MerchantConfirmID = confirmID
	return ok(resp)
}

// cancel handles a failed payment reported by the provider. A performed row is
// not reversed through this path.
func (a *Adapter) cancel(ctx context.Context, tx repository.Tx, t *ptm.PaymentTransaction, reason int, evs *[]events.Event) (int, error) {
	if t.State == ptm.StatePerformed {
		return CodeAlreadyPaid, nil
	}
	changed, err := a.ledger.Cancel(ctx, tx, t, reason)
	if err != nil {
		return 0, err
	}
	if changed {
		r, err := a.recon.ApplyFailure(ctx, tx, t)
		if err != nil {
			return 0, err
		}
		*evs = append(*evs, r.Events...)
	}
	return CodeCancelled, nil
}
