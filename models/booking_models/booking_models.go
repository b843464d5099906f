package booking_models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joy095/roomslot/config/db"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/utils/shared_utils"
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSelected  Status = "selected"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusConfirmed Status = "confirmed"
)

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusConfirmed
}

var ErrBookingNotFound = errors.New("booking not found")

// TimeSlot is a wall-clock interval on a civil date. An end at or before the start
// means the slot continues past midnight into the next date.
type TimeSlot struct {
	Date  string `json:"date"`
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// Booking represents a client's reservation of one or more slots in a room.
// Money fields are minor units of Currency.
type Booking struct {
	ID         uuid.UUID  `json:"id"`
	RequestRef string     `json:"request_ref"`
	RoomID     uuid.UUID  `json:"room_id"`
	ClientID   uuid.UUID  `json:"client_id"`
	HostID     uuid.UUID  `json:"host_id"`
	Slots      []TimeSlot `json:"slots"`

	Status       Status `json:"status"`
	StatusReason string `json:"status_reason,omitempty"`

	BaseTotal     int64  `json:"base_total"`
	ProtectionFee int64  `json:"protection_fee"`
	FinalTotal    int64  `json:"final_total"`
	PaidAmount    int64  `json:"paid_amount"`
	Currency      string `json:"currency"`

	CashSelected  bool   `json:"cash_selected"`
	ProviderPaid  bool   `json:"provider_paid"`
	RefundPending bool   `json:"refund_pending"`
	NeedsReview   bool   `json:"needs_review"`
	ReviewNote    string `json:"review_note,omitempty"`

	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SelectedAt  *time.Time `json:"selected_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// NewBooking creates a pending booking that holds its slots until now+ttl.
func NewBooking(roomID, clientID, hostID uuid.UUID, slots []TimeSlot, now time.Time, ttl time.Duration) (*Booking, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for booking: %w", err)
	}
	ref, err := shared_utils.NewRequestRef()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request reference: %w", err)
	}
	return &Booking{
		ID:         id,
		RequestRef: ref,
		RoomID:     roomID,
		ClientID:   clientID,
		HostID:     hostID,
		Slots:      slots,
		Status:     StatusPending,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsExpired reports whether a pending booking has outlived its hold.
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == StatusPending && !b.ExpiresAt.After(now)
}

// Occupies reports whether the booking holds its slots at the given instant.
func (b *Booking) Occupies(now time.Time) bool {
	switch b.Status {
	case StatusSelected, StatusApproved, StatusConfirmed:
		return true
	case StatusPending:
		return b.ExpiresAt.After(now)
	default:
		return false
	}
}

// Clone returns a copy that shares no mutable state with b.
func (b *Booking) Clone() *Booking {
	c := *b
	c.Slots = append([]TimeSlot(nil), b.Slots...)
	for _, p := range []**time.Time{&c.SelectedAt, &c.ApprovedAt, &c.RejectedAt, &c.CancelledAt, &c.PaidAt, &c.ConfirmedAt} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return &c
}

const bookingColumns = `
	id, request_ref, room_id, client_id, host_id, slots, status, status_reason,
	base_total, protection_fee, final_total, paid_amount, currency,
	cash_selected, provider_paid, refund_pending, needs_review, review_note,
	expires_at, created_at, updated_at,
	selected_at, approved_at, rejected_at, cancelled_at, paid_at, confirmed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	b := &Booking{}
	var slots []byte
	var status string
	err := row.Scan(
		&b.ID, &b.RequestRef, &b.RoomID, &b.ClientID, &b.HostID, &slots, &status, &b.StatusReason,
		&b.BaseTotal, &b.ProtectionFee, &b.FinalTotal, &b.PaidAmount, &b.Currency,
		&b.CashSelected, &b.ProviderPaid, &b.RefundPending, &b.NeedsReview, &b.ReviewNote,
		&b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt,
		&b.SelectedAt, &b.ApprovedAt, &b.RejectedAt, &b.CancelledAt, &b.PaidAt, &b.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	if err := json.Unmarshal(slots, &b.Slots); err != nil {
		return nil, fmt.Errorf("invalid slots for booking %s: %w", b.ID, err)
	}
	return b, nil
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

// GetBookingByID fetches a booking record by its ID, optionally locking the row.
func GetBookingByID(ctx context.Context, q db.Querier, bookingID uuid.UUID, forUpdate bool) (*Booking, error) {
	logger.DebugLogger.Debugf("Attempting to fetch booking with ID: %s", bookingID)

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1` + lockClause(forUpdate)

	booking, err := scanBooking(q.QueryRow(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.WarnLogger.Warnf("Booking with ID %s not found", bookingID)
			return nil, ErrBookingNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch booking %s: %v", bookingID, err)
		return nil, fmt.Errorf("database error fetching booking: %w", err)
	}
	return booking, nil
}

// GetBookingByRef fetches a booking by its host-visible request reference.
func GetBookingByRef(ctx context.Context, q db.Querier, ref string, forUpdate bool) (*Booking, error) {
	logger.DebugLogger.Debugf("Attempting to fetch booking with reference: %s", ref)

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE request_ref = $1` + lockClause(forUpdate)

	booking, err := scanBooking(q.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch booking by reference %s: %v", ref, err)
		return nil, fmt.Errorf("database error fetching booking: %w", err)
	}
	return booking, nil
}

// CreateBooking inserts a new booking record.
func CreateBooking(ctx context.Context, q db.Querier, b *Booking) error {
	logger.InfoLogger.Infof("Attempting to create booking %s for room %s", b.RequestRef, b.RoomID)

	slots, err := json.Marshal(b.Slots)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}

	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18,
		$19, $20, $21,
		$22, $23, $24, $25, $26, $27)`

	_, err = q.Exec(ctx, query,
		b.ID, b.RequestRef, b.RoomID, b.ClientID, b.HostID, slots, string(b.Status), b.StatusReason,
		b.BaseTotal, b.ProtectionFee, b.FinalTotal, b.PaidAmount, b.Currency,
		b.CashSelected, b.ProviderPaid, b.RefundPending, b.NeedsReview, b.ReviewNote,
		b.ExpiresAt, b.CreatedAt, b.UpdatedAt,
		b.SelectedAt, b.ApprovedAt, b.RejectedAt, b.CancelledAt, b.PaidAt, b.ConfirmedAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to insert booking %s: %v", b.RequestRef, err)
		return fmt.Errorf("failed to create booking: %w", err)
	}

	logger.InfoLogger.Infof("Booking %s created successfully", b.ID)
	return nil
}

// UpdateBooking writes every mutable column of the booking.
func UpdateBooking(ctx context.Context, q db.Querier, b *Booking) error {
	query := `
		UPDATE bookings SET
			status = $2, status_reason = $3, paid_amount = $4,
			cash_selected = $5, provider_paid = $6, refund_pending = $7, needs_review = $8, review_note = $9,
			updated_at = $10, selected_at = $11, approved_at = $12, rejected_at = $13,
			cancelled_at = $14, paid_at = $15, confirmed_at = $16
		WHERE id = $1`

	cmdTag, err := q.Exec(ctx, query,
		b.ID, string(b.Status), b.StatusReason, b.PaidAmount,
		b.CashSelected, b.ProviderPaid, b.RefundPending, b.NeedsReview, b.ReviewNote,
		b.UpdatedAt, b.SelectedAt, b.ApprovedAt, b.RejectedAt,
		b.CancelledAt, b.PaidAt, b.ConfirmedAt,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to update booking %s: %v", b.ID, err)
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}

	logger.DebugLogger.Debugf("Booking %s updated to status %s", b.ID, b.Status)
	return nil
}

// ListOccupyingBookings returns the bookings that hold slots in a room at now.
func ListOccupyingBookings(ctx context.Context, q db.Querier, roomID uuid.UUID, now time.Time) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE room_id = $1
		  AND (status IN ('selected', 'approved', 'confirmed')
		       OR (status = 'pending' AND expires_at > $2))
		ORDER BY created_at`

	return queryBookings(ctx, q, query, roomID, now)
}

// ListExpiredPending returns pending bookings whose hold has lapsed. Rows locked by
// a concurrent sweep are skipped.
func ListExpiredPending(ctx context.Context, q db.Querier, now time.Time, limit int) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	return queryBookings(ctx, q, query, now, limit)
}

func queryBookings(ctx context.Context, q db.Querier, query string, args ...any) ([]Booking, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to query bookings: %v", err)
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}
