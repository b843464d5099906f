package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/roomslot/config/db"
	"github.com/joy095/roomslot/models/booking_models"
	ptm "github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/models/schedule_models"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/repository/postgres"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/ledger"
	"github.com/joy095/roomslot/services/monitor"
	"github.com/joy095/roomslot/utils/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStore connects to TEST_DATABASE_URL and seeds a fresh fixture room.
func newStore(t *testing.T) (*postgres.Store, schedule_models.Room) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	room := testfixtures.Room(uuid.New(), uuid.New())
	require.NoError(t, schedule_models.UpsertRoom(ctx, pool, &room))
	return postgres.NewStore(pool), room
}

func TestConcurrentCreatesAdmitOne(t *testing.T) {
	store, room := newStore(t)
	clock := testfixtures.NewClock(testfixtures.Start)
	svc := booking.NewService(store, events.NewRecorder(), monitor.NewMemory(clock.Now), booking.Options{Clock: clock.Now})

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, conflicts := 0, 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient}
			_, err := svc.Create(context.Background(), client, booking.CreateRequest{
				RoomID: room.ID,
				Slots:  []booking_models.TimeSlot{testfixtures.Slot("10:00", "12:00")},
			})
			var conflict *booking.ConflictError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
	assert.Equal(t, n-1, conflicts)
}

func TestTransactionKeys(t *testing.T) {
	store, room := newStore(t)
	ctx := context.Background()
	clock := testfixtures.NewClock(testfixtures.Start)
	svc := booking.NewService(store, events.NewRecorder(), nil, booking.Options{Clock: clock.Now})
	l := ledger.New(clock.Now)

	client := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient}
	b, err := svc.Create(ctx, client, booking.CreateRequest{
		RoomID: room.ID,
		Slots:  []booking_models.TimeSlot{testfixtures.Slot("14:00", "15:00")},
	})
	require.NoError(t, err)

	open := func(id string) (ledger.OpenResult, error) {
		var res ledger.OpenResult
		err := store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			res, err = l.Open(ctx, tx, ledger.OpenParams{
				Provider:     ptm.ProviderPayme,
				ProviderTxID: id,
				AccountRef:   b.RequestRef,
				BookingID:    b.ID,
				ClientID:     b.ClientID,
				Amount:       b.FinalTotal,
				Currency:     b.Currency,
				ProviderTime: clock.Now(),
			})
			return err
		})
		return res, err
	}

	key := uuid.NewString()
	first, err := open(key)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.NotZero(t, first.Transaction.Seq)

	again, err := open(key)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)

	_, err = open(uuid.NewString())
	assert.ErrorIs(t, err, ptm.ErrLiveTransaction)

	err = store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows, err := tx.ListTransactionsByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		assert.Len(t, rows, 1)
		return nil
	})
	require.NoError(t, err)
}
