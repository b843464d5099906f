package payment_transaction_models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joy095/roomslot/config/db"
	"github.com/joy095/roomslot/logger"
)

// Provider names a payment switch.
type Provider string

const (
	ProviderPayme Provider = "payme"
	ProviderClick Provider = "click"
)

// State uses the RPC provider's numbering; the webhook provider maps onto it.
type State int

const (
	StateCreated               State = 1
	StatePerformed             State = 2
	StateCancelled             State = -1
	StateCancelledAfterPerform State = -2
)

func (s State) IsLive() bool { return s == StateCreated || s == StatePerformed }

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePerformed:
		return "performed"
	case StateCancelled:
		return "cancelled"
	case StateCancelledAfterPerform:
		return "cancelled_after_perform"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const liveBookingConstraint = "payment_transactions_live_booking_key"

var (
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrInvalidTransition   = errors.New("invalid payment transaction state transition")

	// ErrLiveTransaction means the booking already has a created or performed transaction.
	ErrLiveTransaction = errors.New("booking already has a live payment transaction")
)

// PaymentTransaction is one ledger row per provider-side transaction id.
type PaymentTransaction struct {
	ID           uuid.UUID  `json:"id"`
	Seq          int64      `json:"seq"`
	Provider     Provider   `json:"provider"`
	ProviderTxID string     `json:"provider_tx_id"`
	AccountRef   string     `json:"account_ref"`
	State        State      `json:"state"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	BookingID    uuid.UUID  `json:"booking_id"`
	ClientID     uuid.UUID  `json:"client_id"`
	ProviderTime time.Time  `json:"provider_time"`
	CreatedAt    time.Time  `json:"created_at"`
	PerformedAt  *time.Time `json:"performed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *int       `json:"cancel_reason,omitempty"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
	Payload      []byte     `json:"-"`
}

// NewPaymentTransaction creates a row in the created state.
func NewPaymentTransaction(provider Provider, providerTxID, accountRef string, bookingID, clientID uuid.UUID, amount int64, currency string, providerTime, now time.Time) (*PaymentTransaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for payment transaction: %w", err)
	}
	if providerTime.IsZero() {
		providerTime = now
	}
	return &PaymentTransaction{
		ID:           id,
		Provider:     provider,
		ProviderTxID: providerTxID,
		AccountRef:   accountRef,
		State:        StateCreated,
		Amount:       amount,
		Currency:     currency,
		BookingID:    bookingID,
		ClientID:     clientID,
		ProviderTime: providerTime,
		CreatedAt:    now,
	}, nil
}

// Perform moves created to performed. It reports false when the row is already performed.
func (t *PaymentTransaction) Perform(now time.Time) (bool, error) {
	switch t.State {
	case StatePerformed:
		return false, nil
	case StateCreated:
		t.State = StatePerformed
		t.PerformedAt = &now
		return true, nil
	default:
		return false, fmt.Errorf("%w: cannot perform a %s transaction", ErrInvalidTransition, t.State)
	}
}

// Cancel moves created to cancelled and performed to cancelled-after-perform.
// It reports false when the row is already cancelled.
func (t *PaymentTransaction) Cancel(reason int, now time.Time) (bool, error) {
	switch t.State {
	case StateCancelled, StateCancelledAfterPerform:
		return false, nil
	case StateCreated:
		t.State = StateCancelled
	case StatePerformed:
		t.State = StateCancelledAfterPerform
	default:
		return false, fmt.Errorf("%w: cannot cancel a %s transaction", ErrInvalidTransition, t.State)
	}
	t.CancelledAt = &now
	t.CancelReason = &reason
	return true, nil
}

// IsTimedOut reports whether a created row is older than the provider's timeout.
func (t *PaymentTransaction) IsTimedOut(now time.Time, timeout time.Duration) bool {
	return t.State == StateCreated && timeout > 0 && now.Sub(t.ProviderTime) > timeout
}

func (t *PaymentTransaction) Clone() *PaymentTransaction {
	c := *t
	c.Payload = append([]byte(nil), t.Payload...)
	if t.PerformedAt != nil {
		v := *t.PerformedAt
		c.PerformedAt = &v
	}
	if t.CancelledAt != nil {
		v := *t.CancelledAt
		c.CancelledAt = &v
	}
	if t.CancelReason != nil {
		v := *t.CancelReason
		c.CancelReason = &v
	}
	if t.ReconciledAt != nil {
		v := *t.ReconciledAt
		c.ReconciledAt = &v
	}
	return &c
}

const transactionColumns = `
	id, seq, provider, provider_tx_id, account_ref, state, amount, currency,
	booking_id, client_id, provider_time, created_at,
	performed_at, cancelled_at, cancel_reason, reconciled_at, payload`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*PaymentTransaction, error) {
	t := &PaymentTransaction{}
	var provider string
	var state int16
	var reason *int32
	err := row.Scan(
		&t.ID, &t.Seq, &provider, &t.ProviderTxID, &t.AccountRef, &state, &t.Amount, &t.Currency,
		&t.BookingID, &t.ClientID, &t.ProviderTime, &t.CreatedAt,
		&t.PerformedAt, &t.CancelledAt, &reason, &t.ReconciledAt, &t.Payload,
	)
	if err != nil {
		return nil, err
	}
	t.Provider = Provider(provider)
	t.State = State(state)
	if reason != nil {
		r := int(*reason)
		t.CancelReason = &r
	}
	return t, nil
}

// InsertPaymentTransaction inserts the row unless (provider, provider_tx_id) already
// exists. It reports whether this call inserted it; on false the caller re-reads
// the winner.
func InsertPaymentTransaction(ctx context.Context, q db.Querier, t *PaymentTransaction) (bool, error) {
	logger.InfoLogger.Infof("Attempting to create %s transaction %s for booking %s", t.Provider, t.ProviderTxID, t.BookingID)

	query := `
		INSERT INTO payment_transactions (
			id, provider, provider_tx_id, account_ref, state, amount, currency,
			booking_id, client_id, provider_time, created_at, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT ON CONSTRAINT payment_transactions_provider_tx_key DO NOTHING
		RETURNING seq`

	var payload any
	if len(t.Payload) > 0 {
		payload = t.Payload
	}

	err := q.QueryRow(ctx, query,
		t.ID, string(t.Provider), t.ProviderTxID, t.AccountRef, int16(t.State), t.Amount, t.Currency,
		t.BookingID, t.ClientID, t.ProviderTime, t.CreatedAt, payload,
	).Scan(&t.Seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.InfoLogger.Infof("Duplicate %s transaction %s: insert skipped", t.Provider, t.ProviderTxID)
			return false, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == liveBookingConstraint {
			return false, ErrLiveTransaction
		}
		logger.ErrorLogger.Errorf("Failed to insert payment transaction %s: %v", t.ProviderTxID, err)
		return false, fmt.Errorf("failed to create payment transaction: %w", err)
	}

	logger.InfoLogger.Infof("Payment transaction %s created successfully (seq %d)", t.ID, t.Seq)
	return true, nil
}

// GetPaymentTransaction looks a row up by its provider key, optionally locking it.
func GetPaymentTransaction(ctx context.Context, q db.Querier, provider Provider, providerTxID string, forUpdate bool) (*PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE provider = $1 AND provider_tx_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t, err := scanTransaction(q.QueryRow(ctx, query, string(provider), providerTxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch %s transaction %s: %v", provider, providerTxID, err)
		return nil, fmt.Errorf("database error fetching payment transaction: %w", err)
	}
	return t, nil
}

// UpdatePaymentTransaction persists state, timestamps and the reconciliation mark.
func UpdatePaymentTransaction(ctx context.Context, q db.Querier, t *PaymentTransaction) error {
	logger.InfoLogger.Infof("Attempting to update payment transaction %s to state %s", t.ID, t.State)

	var reason *int32
	if t.CancelReason != nil {
		r := int32(*t.CancelReason)
		reason = &r
	}

	query := `
		UPDATE payment_transactions
		SET state = $2, performed_at = $3, cancelled_at = $4, cancel_reason = $5, reconciled_at = $6
		WHERE id = $1`

	cmdTag, err := q.Exec(ctx, query, t.ID, int16(t.State), t.PerformedAt, t.CancelledAt, reason, t.ReconciledAt)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update payment transaction %s: %v", t.ID, err)
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListPaymentTransactionsByBooking returns every row for a booking, oldest first.
func ListPaymentTransactionsByBooking(ctx context.Context, q db.Querier, bookingID uuid.UUID) ([]PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE booking_id = $1 ORDER BY seq`
	return queryTransactions(ctx, q, query, bookingID)
}

// ListPaymentTransactionsInRange returns a provider's rows whose provider time is in [from, to].
func ListPaymentTransactionsInRange(ctx context.Context, q db.Querier, provider Provider, from, to time.Time) ([]PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE provider = $1 AND provider_time >= $2 AND provider_time <= $3
		ORDER BY provider_time, seq`
	return queryTransactions(ctx, q, query, string(provider), from, to)
}

func queryTransactions(ctx context.Context, q db.Querier, query string, args ...any) ([]PaymentTransaction, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query payment transactions: %v", err)
		return nil, fmt.Errorf("failed to fetch payment transactions: %w", err)
	}
	defer rows.Close()

	var out []PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment transactions: %w", err)
	}
	return out, nil
}
