// Package repository defines the unit-of-work boundary the booking and payment
// services run inside.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/models/schedule_models"
)

// Store runs units of work. InTx units are serializable with respect to the rows
// they lock; View units are read-only and take no locks.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside one unit of work. Getters lock the
// returned row when the unit is an InTx unit.
type Tx interface {
	// LockRoom serializes admissions for one room until the unit ends.
	LockRoom(ctx context.Context, roomID uuid.UUID) error
	GetRoom(ctx context.Context, roomID uuid.UUID) (*schedule_models.Room, error)

	InsertBooking(ctx context.Context, b *booking_models.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error)
	GetBookingByRef(ctx context.Context, ref string) (*booking_models.Booking, error)
	UpdateBooking(ctx context.Context, b *booking_models.Booking) error
	ListOccupyingBookings(ctx context.Context, roomID uuid.UUID, now time.Time) ([]booking_models.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]booking_models.Booking, error)

	// InsertTransaction reports false when the provider key already exists.
	InsertTransaction(ctx context.Context, t *payment_transaction_models.PaymentTransaction) (bool, error)
	GetTransaction(ctx context.Context, provider payment_transaction_models.Provider, providerTxID string) (*payment_transaction_models.PaymentTransaction, error)
	UpdateTransaction(ctx context.Context, t *payment_transaction_models.PaymentTransaction) error
	ListTransactionsByBooking(ctx context.Context, bookingID uuid.UUID) ([]payment_transaction_models.PaymentTransaction, error)
	ListTransactions(ctx context.Context, provider payment_transaction_models.Provider, from, to time.Time) ([]payment_transaction_models.PaymentTransaction, error)
}
