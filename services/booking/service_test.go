package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/booking_models"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/models/schedule_models"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/services/availability"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/ledger"
	"github.com/joy095/roomslot/utils/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_AdmitsAndPrices(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()

	b, err := env.Bookings.Create(ctx, env.Client, booking.CreateRequest{
		RoomID:         env.Room.ID,
		Slots:          []booking_models.TimeSlot{testfixtures.Slot("10:00", "12:00")},
		ProtectionPlan: true,
	})
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusPending, b.Status)
	assert.Equal(t, env.Client.ID, b.ClientID)
	assert.Equal(t, env.Host.ID, b.HostID)
	assert.Equal(t, int64(10000), b.BaseTotal)
	assert.Equal(t, int64(1500), b.ProtectionFee)
	assert.Equal(t, int64(11500), b.FinalTotal)
	assert.Equal(t, "UZS", b.Currency)
	assert.Equal(t, testfixtures.Start.Add(30*time.Minute), b.ExpiresAt)
	assert.Regexp(t, `^BK-[0-9A-Z]{8}$`, b.RequestRef)

	assert.Equal(t, []string{string(booking.ActionCreate)}, env.Transitions(b.ID))

	byRef, err := env.Bookings.GetByRef(ctx, env.Host, b.RequestRef)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byRef.ID)
}

func TestCreate_ConflictIsRecorded(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	first := env.PendingBooking(t)

	_, err := env.Bookings.Create(ctx, env.Client, booking.CreateRequest{
		RoomID: env.Room.ID,
		Slots:  []booking_models.TimeSlot{testfixtures.Slot("12:15", "13:00")},
	})
	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, availability.ReasonCooldownConflict, conflict.Decision.Reason)
	assert.Equal(t, first.ID, conflict.Decision.ConflictsWith)

	report, err := env.Bookings.ContentionReport(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Total)
	assert.Equal(t, int64(1), report.ByReason[string(availability.ReasonCooldownConflict)])
	assert.Equal(t, int64(1), report.ByRoom[env.Room.ID.String()])

	_, err = env.Bookings.Create(ctx, env.Client, booking.CreateRequest{
		RoomID: env.Room.ID,
		Slots:  []booking_models.TimeSlot{testfixtures.Slot("12:30", "13:00")},
	})
	require.NoError(t, err)
}

func TestCreate_ExpiredHoldFreesSlot(t *testing.T) {
	env := testfixtures.NewEnv(t)
	env.PendingBooking(t)

	env.Clock.Advance(31 * time.Minute)
	b := env.PendingBooking(t)
	assert.Equal(t, booking_models.StatusPending, b.Status)
}

func TestCreate_Validation(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()

	_, err := env.Bookings.Create(ctx, env.Host, booking.CreateRequest{RoomID: env.Room.ID, Slots: []booking_models.TimeSlot{testfixtures.Slot("10:00", "11:00")}})
	assert.ErrorIs(t, err, booking.ErrForbidden)

	_, err = env.Bookings.Create(ctx, env.Client, booking.CreateRequest{RoomID: env.Room.ID})
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)

	_, err = env.Bookings.Create(ctx, env.Client, booking.CreateRequest{RoomID: uuid.New(), Slots: []booking_models.TimeSlot{testfixtures.Slot("10:00", "11:00")}})
	assert.ErrorIs(t, err, schedule_models.ErrRoomNotFound)

	_, err = env.Bookings.Create(ctx, env.Client, booking.CreateRequest{
		RoomID:      env.Room.ID,
		Slots:       []booking_models.TimeSlot{testfixtures.Slot("10:00", "11:00"), testfixtures.Slot("13:00", "14:00")},
		RepeatUntil: "2026-10-16",
	})
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)
}

func TestCreate_RepeatUntil(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()

	b, err := env.Bookings.Create(ctx, env.Client, booking.CreateRequest{
		RoomID:      env.Room.ID,
		Slots:       []booking_models.TimeSlot{testfixtures.Slot("10:00", "11:00")},
		RepeatUntil: "2026-10-16",
	})
	require.NoError(t, err)
	assert.Len(t, b.Slots, 5)
	assert.Equal(t, int64(25000), b.FinalTotal)

	// The series runs into Saturday, which is closed.
	_, err = env.Bookings.Create(ctx, env.Client, booking.CreateRequest{
		RoomID:      env.Room.ID,
		Slots:       []booking_models.TimeSlot{testfixtures.Slot("14:00", "15:00")},
		RepeatUntil: "2026-10-17",
	})
	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, availability.ReasonOutsideHours, conflict.Decision.Reason)
	assert.Equal(t, 5, conflict.Decision.SlotIndex)
}

func TestCreate_ConcurrentRequestsAdmitOne(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient}
			_, errs[i] = env.Bookings.Create(ctx, client, booking.CreateRequest{
				RoomID: env.Room.ID,
				Slots:  []booking_models.TimeSlot{testfixtures.Slot("10:00", "11:00")},
			})
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		var conflict *booking.ConflictError
		assert.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, 1, admitted)
}

// lateService shares env's store but reads a clock that lags behind env.Clock.
func lateService(env *testfixtures.Env, at time.Time) *booking.Service {
	return booking.NewService(env.Store, env.Events, env.Monitor, booking.Options{Clock: func() time.Time { return at }})
}

func TestSelect_RefusedWhenLapsedHoldWasRebooked(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	first := env.PendingBooking(t)

	env.Clock.Advance(31 * time.Minute)
	second := env.PendingBooking(t)

	lagging := lateService(env, first.ExpiresAt.Add(-time.Second))
	for name, op := range map[string]func() (*booking_models.Booking, error){
		"select":  func() (*booking_models.Booking, error) { return lagging.Select(ctx, env.Host, first.ID) },
		"approve": func() (*booking_models.Booking, error) { return lagging.Approve(ctx, env.Host, first.ID) },
	} {
		_, err := op()
		var te *booking.TransitionError
		require.ErrorAs(t, err, &te, name)
		assert.Equal(t, booking_models.StatusPending, te.From, name)
	}

	assert.Equal(t, booking_models.StatusPending, env.Booking(t, first.ID).Status)
	assert.Equal(t, booking_models.StatusPending, env.Booking(t, second.ID).Status)
	assert.Equal(t, []string{"create"}, env.Transitions(first.ID))
}

func TestSelect_RacingCreateLeavesOneHolder(t *testing.T) {
	for round := 0; round < 20; round++ {
		env := testfixtures.NewEnv(t)
		ctx := context.Background()
		first := env.PendingBooking(t)
		env.Clock.Advance(31 * time.Minute)
		lagging := lateService(env, first.ExpiresAt.Add(-time.Second))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = lagging.Select(ctx, env.Host, first.ID)
		}()
		go func() {
			defer wg.Done()
			client := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient}
			_, _ = env.Bookings.Create(ctx, client, booking.CreateRequest{
				RoomID: env.Room.ID,
				Slots:  []booking_models.TimeSlot{testfixtures.Slot("10:00", "12:00")},
			})
		}()
		wg.Wait()

		var holders []booking_models.Booking
		require.NoError(t, env.Store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			holders, err = tx.ListOccupyingBookings(ctx, env.Room.ID, env.Clock.Now())
			return err
		}))
		require.Len(t, holders, 1, "round %d", round)
	}
}

func TestTransitions_Lifecycle(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	b := env.PendingBooking(t)

	_, err := env.Bookings.Approve(ctx, env.Client, b.ID)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	b, err = env.Bookings.Approve(ctx, env.Host, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusApproved, b.Status)

	_, err = env.Bookings.Confirm(ctx, env.Host, b.ID)
	var te *booking.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, booking_models.StatusApproved, env.Booking(t, b.ID).Status)

	b, err = env.Bookings.Reject(ctx, env.Host, b.ID, "maintenance")
	require.NoError(t, err)
	assert.Equal(t, booking_models.StatusRejected, b.Status)
	assert.Equal(t, "maintenance", b.StatusReason)

	assert.Equal(t, []string{"create", "approve", "reject"}, env.Transitions(b.ID))
}

func TestGet_Visibility(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	b := env.PendingBooking(t)

	stranger := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient}
	_, err := env.Bookings.Get(ctx, stranger, b.ID)
	assert.ErrorIs(t, err, booking.ErrForbidden)

	_, err = env.Bookings.Get(ctx, env.Agent, b.ID)
	assert.NoError(t, err)

	_, err = env.Bookings.Get(ctx, env.Agent, uuid.New())
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestCancel_BlockedAfterPerform(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	b := env.PayableBooking(t)

	err := env.Store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		opened, err := env.Ledger.Open(ctx, tx, ledger.OpenParams{
			Provider:     ptm.ProviderPayme,
			ProviderTxID: "perf-1",
			AccountRef:   b.RequestRef,
			BookingID:    b.ID,
			ClientID:     b.ClientID,
			Amount:       b.FinalTotal,
			Currency:     b.Currency,
		})
		if err != nil {
			return err
		}
		_, err = env.Ledger.Perform(ctx, tx, opened.Transaction)
		return err
	})
	require.NoError(t, err)

	_, err = env.Bookings.Cancel(ctx, env.Client, b.ID)
	var te *booking.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, booking.ActionCancel, te.Action)
	assert.Equal(t, booking_models.StatusSelected, env.Booking(t, b.ID).Status)
}

func TestSweepExpired(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()

	stale := env.PendingBooking(t, testfixtures.Slot("10:00", "11:00"))
	kept := env.PendingBooking(t, testfixtures.Slot("14:00", "15:00"))
	kept, err := env.Bookings.Select(ctx, env.Host, kept.ID)
	require.NoError(t, err)

	n, err := env.Bookings.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.Clock.Advance(time.Hour)
	n, err = env.Bookings.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := env.Booking(t, stale.ID)
	assert.Equal(t, booking_models.StatusCancelled, got.Status)
	assert.Equal(t, "expired", got.StatusReason)
	assert.Equal(t, booking_models.StatusSelected, env.Booking(t, kept.ID).Status)

	n, err = env.Bookings.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepExpired_Batches(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	svc := booking.NewService(env.Store, env.Events, env.Monitor, booking.Options{Clock: env.Clock.Now, SweepBatch: 2})

	for _, s := range []booking_models.TimeSlot{
		testfixtures.Slot("09:00", "10:00"),
		testfixtures.Slot("11:00", "12:00"),
		testfixtures.Slot("13:00", "14:00"),
		testfixtures.Slot("15:00", "16:00"),
		testfixtures.Slot("17:00", "18:00"),
	} {
		env.PendingBooking(t, s)
	}

	env.Clock.Advance(time.Hour)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestFreeBusy(t *testing.T) {
	env := testfixtures.NewEnv(t)
	ctx := context.Background()
	env.PendingBooking(t, testfixtures.Slot("10:00", "11:00"))

	day, err := env.Bookings.FreeBusy(ctx, env.Room.ID, testfixtures.Monday)
	require.NoError(t, err)
	assert.True(t, day.Open)
	assert.Len(t, day.Busy, 3)
	assert.Equal(t, availability.Span{Start: "11:30", End: "18:00"}, day.Free[len(day.Free)-1])

	_, err = env.Bookings.FreeBusy(ctx, env.Room.ID, "12-10-2026")
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)

	_, err = env.Bookings.FreeBusy(ctx, uuid.New(), testfixtures.Monday)
	assert.ErrorIs(t, err, schedule_models.ErrRoomNotFound)
}
