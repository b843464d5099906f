// Package testfixtures wires the services over the in-memory store with a
// controllable clock. Only tests import it.
package testfixtures

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
	"github.com/joy095/roomslot/repository/memory"
	"github.com/joy095/roomslot/services/booking"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/ledger"
	"github.com/joy095/roomslot/services/monitor"
	"github.com/joy095/roomslot/services/reconciliation"
	"github.com/stretchr/testify/require"
)

// Monday is a bookable weekday well after Start.
const Monday = "2026-10-12"

var Start = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Room is open 09:00-18:00 on weekdays with a 30 minute cooldown. Two hours at the
// hourly rate cost exactly 100.00.
func Room(id, hostID uuid.UUID) schedule_models.Room {
	hours := schedule_models.Window{Start: "09:00", End: "18:00"}
	return schedule_models.Room{
		ID:       id,
		HostID:   hostID,
		Currency: "UZS",
		Rates: schedule_models.Rates{
			HourlyRate:        5000,
			FullDayRate:       30000,
			ProtectionPlanFee: 1500,
		},
		Schedule: schedule_models.RoomScheduleConfig{
			Weekdays: map[time.Weekday]schedule_models.Window{
				time.Monday:    hours,
				time.Tuesday:   hours,
				time.Wednesday: hours,
				time.Thursday:  hours,
				time.Friday:    hours,
			},
			CooldownMinutes: 30,
			FullDayHours:    8,
		},
	}
}

type Env struct {
	Store    *memory.Store
	Clock    *Clock
	Events   *events.Recorder
	Monitor  *monitor.Memory
	Ledger   *ledger.Ledger
	Recon    *reconciliation.Service
	Bookings *booking.Service
	Room     schedule_models.Room

	Client shared_models.Actor
	Host   shared_models.Actor
	Agent  shared_models.Actor
}

func NewEnv(t testing.TB) *Env {
	t.Helper()
	clock := NewClock(Start)
	store := memory.NewStore()
	rec := events.NewRecorder()
	mon := monitor.NewMemory(clock.Now)
	l := ledger.New(clock.Now)

	host := shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleHost}
	room := Room(uuid.New(), host.ID)
	store.PutRoom(room)

	return &Env{
		Store:    store,
		Clock:    clock,
		Events:   rec,
		Monitor:  mon,
		Ledger:   l,
		Recon:    reconciliation.NewService(l),
		Bookings: booking.NewService(store, rec, mon, booking.Options{Clock: clock.Now}),
		Room:     room,
		Client:   shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleClient},
		Host:     host,
		Agent:    shared_models.Actor{ID: uuid.New(), Role: shared_models.RoleAgent},
	}
}

// Slot is a Monday slot in the fixture room.
func Slot(start, end string) booking_models.TimeSlot {
	return booking_models.TimeSlot{Date: Monday, Start: start, End: end}
}

// PendingBooking creates a booking for the slots, Monday 10:00-12:00 by default.
func (e *Env) PendingBooking(t testing.TB, slots ...booking_models.TimeSlot) *booking_models.Booking {
	t.Helper()
	if len(slots) == 0 {
		slots = []booking_models.TimeSlot{Slot("10:00", "12:00")}
	}
	b, err := e.Bookings.Create(context.Background(), e.Client, booking.CreateRequest{RoomID: e.Room.ID, Slots: slots})
	require.NoError(t, err)
	return b
}

// PayableBooking is a selected booking with a FinalTotal of 10000.
func (e *Env) PayableBooking(t testing.TB) *booking_models.Booking {
	t.Helper()
	b := e.PendingBooking(t)
	b, err := e.Bookings.Select(context.Background(), e.Host, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), b.FinalTotal)
	return b
}

func (e *Env) Booking(t testing.TB, id uuid.UUID) *booking_models.Booking {
	t.Helper()
	var b *booking_models.Booking
	err := e.Store.View(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		return err
	})
	require.NoError(t, err)
	return b
}

func (e *Env) Transaction(t testing.TB, provider ptm.Provider, providerTxID string) *ptm.PaymentTransaction {
	t.Helper()
	var out *ptm.PaymentTransaction
	err := e.Store.View(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetTransaction(ctx, provider, providerTxID)
		return err
	})
	require.NoError(t, err)
	return out
}

// Transitions returns the recorded transition actions for a booking, in order.
func (e *Env) Transitions(id uuid.UUID) []string {
	var out []string
	for _, ev := range e.Events.OfType(events.TypeBookingTransitioned) {
		if ev.BookingID == id {
			out = append(out, ev.Action)
		}
	}
	return out
}
