package click_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/joy095/roomslot/models/booking_models"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/services/click"
	"github.com/joy095/roomslot/utils/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serviceID = 4242
	secret    = "click-secret"
)

func newAdapter(env *testfixtures.Env) *click.Adapter {
	return click.NewAdapter(env.Store, env.Ledger, env.Recon, env.Events, click.Options{ServiceID: serviceID, SecretKey: secret})
}

func signed(r click.Request) url.Values {
	r.SignString = click.Sign(r, secret)
	return r.Form()
}

func prepareRequest(clickTransID string, b *booking_models.Booking) click.Request {
	return click.Request{
		ClickTransID:    clickTransID,
		ServiceID:       strconv.Itoa(serviceID),
		ClickPaydocID:   "9001",
		MerchantTransID: b.RequestRef,
		Amount:          click.FormatAmount(b.FinalTotal),
		Action:          strconv.Itoa(click.ActionPrepare),
		Error:           "0",
		SignTime:        "2026-10-01 09:00:00",
	}
}

func completeRequest(prepare click.Request, prepareID int64, errorCode int) click.Request {
	r := prepare
	r.Action = strconv.Itoa(click.ActionComplete)
	r.MerchantPrepareID = strconv.FormatInt(prepareID, 10)
	r.Error = strconv.Itoa(errorCode)
	return r
}

func TestPrepareComplete(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	ctx := context.Background()
	b := env.PayableBooking(t)

	prep := prepareRequest("777", b)
	resp := a.Handle(ctx, signed(prep))
	require.Equal(t, click.CodeSuccess, resp.Error, resp.ErrorNote)
	assert.Equal(t, int64(777), resp.ClickTransID)
	assert.Equal(t, b.RequestRef, resp.MerchantTransID)
	require.NotZero(t, resp.MerchantPrepareID)

	again := a.Handle(ctx, signed(prep))
	assert.Equal(t, resp, again, "a repeated prepare answers from the stored row")
	assert.Equal(t, 1, env.Store.TransactionCount())

	done := a.Handle(ctx, signed(completeRequest(prep, resp.MerchantPrepareID, 0)))
	require.Equal(t, click.CodeSuccess, done.Error, done.ErrorNote)
	assert.Equal(t, resp.MerchantPrepareID, done.MerchantConfirmID)

	got := env.Booking(t, b.ID)
	assert.Equal(t, booking_models.StatusApproved, got.Status)
	assert.True(t, got.ProviderPaid)
	assert.Equal(t, ptm.StatePerformed, env.Transaction(t, ptm.ProviderClick, "777").State)

	doneAgain := a.Handle(ctx, signed(completeRequest(prep, resp.MerchantPrepareID, 0)))
	assert.Equal(t, done, doneAgain)
	assert.Equal(t, []string{"create", "select", "payment_applied"}, env.Transitions(b.ID))

	paid := a.Handle(ctx, signed(prepareRequest("778", b)))
	assert.Equal(t, click.CodeAlreadyPaid, paid.Error)
}

func TestTamperedSignatureWritesNothing(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	b := env.PayableBooking(t)

	form := signed(prepareRequest("777", b))
	form.Set("amount", "1.00")
	resp := a.Handle(context.Background(), form)
	assert.Equal(t, click.CodeSignFailed, resp.Error)
	assert.Equal(t, "SIGN CHECK FAILED!", resp.ErrorNote)
	assert.Zero(t, resp.MerchantPrepareID)
	assert.Zero(t, env.Store.TransactionCount())

	unsigned := prepareRequest("777", b).Form()
	assert.Equal(t, click.CodeSignFailed, a.Handle(context.Background(), unsigned).Error)
}

func TestRequestValidation(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	ctx := context.Background()
	b := env.PayableBooking(t)

	wrongService := prepareRequest("777", b)
	wrongService.ServiceID = "1"
	assert.Equal(t, click.CodeBadRequest, a.Handle(ctx, signed(wrongService)).Error)

	badAction := prepareRequest("777", b)
	badAction.Action = "5"
	assert.Equal(t, click.CodeActionNotFound, a.Handle(ctx, signed(badAction)).Error)

	badAmount := prepareRequest("777", b)
	badAmount.Amount = "100.001"
	assert.Equal(t, click.CodeBadRequest, a.Handle(ctx, signed(badAmount)).Error)

	wrongAmount := prepareRequest("777", b)
	wrongAmount.Amount = "99.00"
	assert.Equal(t, click.CodeIncorrectAmount, a.Handle(ctx, signed(wrongAmount)).Error)

	unknown := prepareRequest("777", b)
	unknown.MerchantTransID = "BK-NOPE"
	assert.Equal(t, click.CodeBookingNotFound, a.Handle(ctx, signed(unknown)).Error)

	pending := env.PendingBooking(t, testfixtures.Slot("15:00", "17:00"))
	assert.Equal(t, click.CodeBadRequest, a.Handle(ctx, signed(prepareRequest("779", pending))).Error)

	assert.Zero(t, env.Store.TransactionCount())
}

func TestSecondLiveTransactionIsRefused(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	ctx := context.Background()
	b := env.PayableBooking(t)

	require.Equal(t, click.CodeSuccess, a.Handle(ctx, signed(prepareRequest("777", b))).Error)
	assert.Equal(t, click.CodeBadRequest, a.Handle(ctx, signed(prepareRequest("778", b))).Error)
	assert.Equal(t, 1, env.Store.TransactionCount())
}

func TestCompleteWithProviderError(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	ctx := context.Background()
	b := env.PayableBooking(t)

	prep := prepareRequest("777", b)
	resp := a.Handle(ctx, signed(prep))
	require.Equal(t, click.CodeSuccess, resp.Error)

	failed := a.Handle(ctx, signed(completeRequest(prep, resp.MerchantPrepareID, -5017)))
	assert.Equal(t, click.CodeCancelled, failed.Error)

	row := env.Transaction(t, ptm.ProviderClick, "777")
	assert.Equal(t, ptm.StateCancelled, row.State)
	require.NotNil(t, row.CancelReason)
	assert.Equal(t, -5017, *row.CancelReason)

	got := env.Booking(t, b.ID)
	assert.Equal(t, booking_models.StatusRejected, got.Status)
	assert.Equal(t, "payment_failed", got.StatusReason)

	retry := a.Handle(ctx, signed(completeRequest(prep, resp.MerchantPrepareID, 0)))
	assert.Equal(t, click.CodeCancelled, retry.Error)
}

func TestCompleteChecksPrepareID(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	ctx := context.Background()
	b := env.PayableBooking(t)

	prep := prepareRequest("777", b)
	resp := a.Handle(ctx, signed(prep))
	require.Equal(t, click.CodeSuccess, resp.Error)

	wrong := a.Handle(ctx, signed(completeRequest(prep, resp.MerchantPrepareID+100, 0)))
	assert.Equal(t, click.CodeTransactionNotFound, wrong.Error)

	missing := completeRequest(prepareRequest("999", b), resp.MerchantPrepareID, 0)
	assert.Equal(t, click.CodeTransactionNotFound, a.Handle(ctx, signed(missing)).Error)

	assert.Equal(t, ptm.StateCreated, env.Transaction(t, ptm.ProviderClick, "777").State)
}

func TestCompleteAfterBookingLeftPayableState(t *testing.T) {
	env := testfixtures.NewEnv(t)
	a := newAdapter(env)
	ctx := context.Background()
	b := env.PayableBooking(t)

	prep := prepareRequest("777", b)
	resp := a.Handle(ctx, signed(prep))
	require.Equal(t, click.CodeSuccess, resp.Error)

	_, err := env.Bookings.Reject(ctx, env.Host, b.ID, "")
	require.NoError(t, err)

	done := a.Handle(ctx, signed(completeRequest(prep, resp.MerchantPrepareID, 0)))
	assert.Equal(t, click.CodeCancelled, done.Error)
	assert.Equal(t, ptm.StateCancelled, env.Transaction(t, ptm.ProviderClick, "777").State)
}
