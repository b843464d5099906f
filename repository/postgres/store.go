package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/models/schedule_models"
	"github.com/joy095/roomslot/repository"
)

// Store runs units of work as PostgreSQL transactions.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, true, fn)
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, locking bool, fn func(ctx context.Context, tx repository.Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		logger.ErrorLogger.Errorf("[TX_BEGIN_FAIL] %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit is a no-op.
		_ = pgxTx.Rollback(ctx)
	}()

	if err := fn(ctx, &unit{tx: pgxTx, locking: locking}); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		logger.ErrorLogger.Errorf("[TX_COMMIT_FAIL] %v", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type unit struct {
	tx      pgx.Tx
	locking bool
}

func (u *unit) LockRoom(ctx context.Context, roomID uuid.UUID) error {
	if !u.locking {
		return nil
	}
	if _, err := u.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, roomID.String()); err != nil {
		logger.ErrorLogger.Errorf("[LOCK_FAIL] room %s: %v", roomID, err)
		return fmt.Errorf("failed to lock room %s: %w", roomID, err)
	}
	return nil
}

func (u *unit) GetRoom(ctx context.Context, roomID uuid.UUID) (*schedule_models.Room, error) {
	return schedule_models.GetRoomByID(ctx, u.tx, roomID)
}

func (u *unit) InsertBooking(ctx context.Context, b *booking_models.Booking) error {
	return booking_models.CreateBooking(ctx, u.tx, b)
}

func (u *unit) GetBooking(ctx context.Context, id uuid.UUID) (*booking_models.Booking, error) {
	return booking_models.GetBookingByID(ctx, u.tx, id, u.locking)
}

func (u *unit) GetBookingByRef(ctx context.Context, ref string) (*booking_models.Booking, error) {
	return booking_models.GetBookingByRef(ctx, u.tx, ref, u.locking)
}

func (u *unit) UpdateBooking(ctx context.Context, b *booking_models.Booking) error {
	return booking_models.UpdateBooking(ctx, u.tx, b)
}

func (u *unit) ListOccupyingBookings(ctx context.Context, roomID uuid.UUID, now time.Time) ([]booking_models.Booking, error) {
	return booking_models.ListOccupyingBookings(ctx, u.tx, roomID, now)
}

func (u *unit) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]booking_models.Booking, error) {
	return booking_models.ListExpiredPending(ctx, u.tx, now, limit)
}

func (u *unit) InsertTransaction(ctx context.Context, t *payment_transaction_models.PaymentTransaction) (bool, error) {
	return payment_transaction_models.InsertPaymentTransaction(ctx, u.tx, t)
}

func (u *unit) GetTransaction(ctx context.Context, provider payment_transaction_models.Provider, providerTxID string) (*payment_transaction_models.PaymentTransaction, error) {
	return payment_transaction_models.GetPaymentTransaction(ctx, u.tx, provider, providerTxID, u.locking)
}

func (u *unit) UpdateTransaction(ctx context.Context, t *payment_transaction_models.PaymentTransaction) error {
	return payment_transaction_models.UpdatePaymentTransaction(ctx, u.tx, t)
}

func (u *unit) ListTransactionsByBooking(ctx context.Context, bookingID uuid.UUID) ([]payment_transaction_models.PaymentTransaction, error) {
	return payment_transaction_models.ListPaymentTransactionsByBooking(ctx, u.tx, bookingID)
}

func (u *unit) ListTransactions(ctx context.Context, provider payment_transaction_models.Provider, from, to time.Time) ([]payment_transaction_models.PaymentTransaction, error) {
	return payment_transaction_models.ListPaymentTransactionsInRange(ctx, u.tx, provider, from, to)
}
