// Package memory is an in-process Store. Every InTx unit holds one mutex for its
// whole duration and is rolled back when fn returns an error.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/models/schedule_models"
	"github.com/joy095/roomslot/repository"
)

type txKey struct {
	provider payment_transaction_models.Provider
	id       string
}

type state struct {
	rooms    map[uuid.UUID]schedule_models.Room
	bookings map[uuid.UUID]*booking_models.Booking
	refs     map[string]uuid.UUID
	txs      map[txKey]*payment_transaction_models.PaymentTransaction
	seq      int64
}

func (s *state) clone() *state {
	c := &state{
		rooms:    maps.Clone(s.rooms),
		bookings: make(map[uuid.UUID]*booking_models.Booking, len(s.bookings)),
		refs:     maps.Clone(s.refs),
		txs:      make(map[txKey]*payment_transaction_models.PaymentTransaction, len(s.txs)),
		seq:      s.seq,
	}
	for id, b := range s.bookings {
		c.bookings[id] = b.Clone()
	}
	for k, t := range s.txs {
		c.txs[k] = t.Clone()
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func NewStore() *Store {
	return &Store{st: &state{
		rooms:    map[uuid.UUID]schedule_models.Room{},
		bookings: map[uuid.UUID]*booking_models.Booking{},
		refs:     map[string]uuid.UUID{},
		txs:      map[txKey]*payment_transaction_models.PaymentTransaction{},
	}}
}

// PutRoom seeds the read-only room directory.
func (s *Store) PutRoom(room schedule_models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room.Schedule.RoomID = room.ID
	s.st.rooms[room.ID] = room
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &unit{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &unit{st: s.st, readOnly: true})
}

// TransactionCount returns the number of ledger rows; used by tests.
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.txs)
}

type unit struct {
	st       *state
	readOnly bool
}

func (u *unit) LockRoom(ctx context.Context, roomID uuid.UUID) error { return nil }

func (u *unit) GetRoom(ctx context.Context, roomID uuid.UUID) (*schedule_models.Room, error) {
	room, ok := u.st.rooms[roomID]
	if !ok {
		return nil, schedule_models.ErrRoomNotFound
	}
	return &room, nil
}

func (u *unit) InsertBooking(ctx context.Context, b *booking_models.Booking) error {
	if u.readOnly {
		return errReadOnly
	}
	if _, exists := u.st.refs[b.RequestRef]; exists {
		return errDuplicateRef
	}
	u.st.bookings[b.ID] = b.Clone()
	u.st.refs[b.RequestRef] = b.ID
	return nil
}

func (u *unit) GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	b, ok := u.st.bookings[id]
	if !ok {
		return nil, booking_models.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (u *unit) GetBookingByRef(ctx context.Context, ref string) (*booking_models.Booking, error) {
	id, ok := u.st.refs[ref]
	if !ok {
		return nil, booking_models.ErrBookingNotFound
	}
	return u.GetBooking(ctx, id)
}

func (u *unit) UpdateBooking(ctx context.Context, b *booking_models.Booking) error {
	if u.readOnly {
		return errReadOnly
	}
	if _, ok := u.st.bookings[b.ID]; !ok {
		return booking_models.ErrBookingNotFound
	}
	u.st.bookings[b.ID] = b.Clone()
	return nil
}

func (u *unit) ListOccupyingBookings(ctx context.Context, roomID uuid.UUID, now time.Time) ([]booking_models.Booking, error) {
	var out []booking_models.Booking
	for _, b := range u.st.bookings {
		if b.RoomID == roomID && b.Occupies(now) {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (u *unit) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]booking_models.Booking, error) {
	var out []booking_models.Booking
	for _, b := range u.st.bookings {
		if b.IsExpired(now) {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (u *unit) InsertTransaction(ctx context.Context, t *payment_transaction_models.PaymentTransaction) (bool, error) {
	if u.readOnly {
		return false, errReadOnly
	}
	key := txKey{t.Provider, t.ProviderTxID}
	if _, exists := u.st.txs[key]; exists {
		return false, nil
	}
	if t.State.IsLive() {
		for _, other := range u.st.txs {
			if other.BookingID == t.BookingID && other.State.IsLive() {
				return false, payment_transaction_models.ErrLiveTransaction
			}
		}
	}
	u.st.seq++
	t.Seq = u.st.seq
	u.st.txs[key] = t.Clone()
	return true, nil
}

func (u *unit) GetTransaction(ctx context.Context, provider payment_transaction_models.Provider, providerTxID string) (*payment_transaction_models.PaymentTransaction, error) {
	t, ok := u.st.txs[txKey{provider, providerTxID}]
	if !ok {
		return nil, payment_transaction_models.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

func (u *unit) UpdateTransaction(ctx context.Context, t *payment_transaction_models.PaymentTransaction) error {
	if u.readOnly {
		return errReadOnly
	}
	key := txKey{t.Provider, t.ProviderTxID}
	if _, ok := u.st.txs[key]; !ok {
		return payment_transaction_models.ErrTransactionNotFound
	}
	u.st.txs[key] = t.Clone()
	return nil
}

func (u *unit) ListTransactionsByBooking(ctx context.Context, bookingID uuid.UUID) ([]payment_transaction_models.PaymentTransaction, error) {
	var out []payment_transaction_models.PaymentTransaction
	for _, t := range u.st.txs {
		if t.BookingID == bookingID {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (u *unit) ListTransactions(ctx context.Context, provider payment_transaction_models.Provider, from, to time.Time) ([]payment_transaction_models.PaymentTransaction, error) {
	var out []payment_transaction_models.PaymentTransaction
	for _, t := range u.st.txs {
		if t.Provider == provider && !t.ProviderTime.Before(from) && !t.ProviderTime.After(to) {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderTime.Equal(out[j].ProviderTime) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ProviderTime.Before(out[j].ProviderTime)
	})
	return out, nil
}
