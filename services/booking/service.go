// Package booking owns the booking lifecycle. Pure transitions live in machine.go;
// Service runs them inside store units and publishes the transitioned signal.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/payment_transaction_models"
	"github.com/joy095/roomslot/models/schedule_models"
	"github.com/joy095/roomslot/models/shared_models"
	"github.com/joy095/roomslot/repository"
	"github.com/joy095/roomslot/services/availability"
	"github.com/joy095/roomslot/services/events"
	"github.com/joy095/roomslot/services/monitor"
)

const (
	defaultPendingTTL  = 30 * time.Minute
	defaultSweepBatch  = 200
	maxSweepRounds     = 50
	maxSlotsPerBooking = 400
)

type Options struct {
	PendingTTL time.Duration
	SweepBatch int
	Clock      func() time.Time
}

type Service struct {
	store      repository.Store
	publisher  events.Publisher
	monitor    monitor.Monitor
	pendingTTL time.Duration
	sweepBatch int
	now        func() time.Time
}

func NewService(store repository.Store, publisher events.Publisher, mon monitor.Monitor, opts Options) *Service {
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	if mon == nil {
		mon = monitor.NewMemory(opts.Clock)
	}
	return &Service{
		store:      store,
		publisher:  publisher,
		monitor:    mon,
		pendingTTL: opts.PendingTTL,
		sweepBatch: opts.SweepBatch,
		now:        opts.Clock,
	}
}

// CreateRequest asks for one or more slots in a room. RepeatUntil expands a single
// slot into a daily series ending on that date.
type CreateRequest struct {
	RoomID         uuid.UUID                 `json:"room_id"`
	Slots          []booking_models.TimeSlot `json:"slots"`
	RepeatUntil    string                    `json:"repeat_until,omitempty"`
	ProtectionPlan bool                      `json:"protection_plan"`
	Cash           bool                      `json:"cash"`
}

func (r CreateRequest) expand() ([]booking_models.TimeSlot, error) {
	if len(r.Slots) == 0 {
		return nil, invalidRequest("at least one slot is required")
	}
	if r.RepeatUntil == "" {
		if len(r.Slots) > maxSlotsPerBooking {
			return nil, invalidRequest("at most %d slots per booking", maxSlotsPerBooking)
		}
		return r.Slots, nil
	}
	if len(r.Slots) != 1 {
		return nil, invalidRequest("repeat_until needs exactly one slot")
	}
	slots, err := availability.ExpandDaily(r.Slots[0], r.RepeatUntil)
	if err != nil {
		return nil, invalidRequest("%v", err)
	}
	return slots, nil
}

// Create admits and persists a pending booking. The admission check and the insert
// run in one unit holding the room lock, so two overlapping requests cannot both win.
func (s *Service) Create(ctx context.Context, actor shared_models.Actor, req CreateRequest) (*booking_models.Booking, error) {
	if actor.Role != shared_models.RoleClient || actor.ID == uuid.Nil {
		return nil, ErrForbidden
	}
	slots, err := req.expand()
	if err != nil {
		return nil, err
	}

	var now time.Time
	var created *booking_models.Booking
	var conflict *ConflictError

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		room, err := tx.GetRoom(ctx, req.RoomID)
		if err != nil {
			return err
		}
		if err := tx.LockRoom(ctx, room.ID); err != nil {
			return err
		}
		now = s.now()
		existing, err := tx.ListOccupyingBookings(ctx, room.ID, now)
		if err != nil {
			return err
		}

		decision := availability.IsAdmissible(room.Schedule, existing, slots, now)
		if !decision.Admit {
			conflict = &ConflictError{Decision: decision}
			return nil
		}

		quote, err := availability.QuoteSlots(*room, slots, req.ProtectionPlan)
		if err != nil {
			return invalidRequest("%v", err)
		}

		b, err := booking_models.NewBooking(room.ID, actor.ID, room.HostID, slots, now, s.pendingTTL)
		if err != nil {
			return err
		}
		b.BaseTotal = quote.BaseTotal
		b.ProtectionFee = quote.ProtectionFee
		b.FinalTotal = quote.FinalTotal
		b.Currency = room.Currency
		b.CashSelected = req.Cash

		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		if errors.Is(err, schedule_models.ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	if conflict != nil {
		logger.InfoLogger.Infof("Admission refused for room %s: %s (slot %d)", req.RoomID, conflict.Decision.Reason, conflict.Decision.SlotIndex)
		s.monitor.RecordConflict(ctx, req.RoomID, string(conflict.Decision.Reason))
		return nil, conflict
	}

	logger.InfoLogger.Infof("Booking %s (%s) admitted for room %s", created.ID, created.RequestRef, created.RoomID)
	events.PublishAfterCommit(ctx, s.publisher, []events.Event{
		events.ForBooking(events.TypeBookingTransitioned, string(ActionCreate), created, "", now),
	})
	return created, nil
}

// Get returns a booking the actor is allowed to see.
func (s *Service) Get(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
	var b *booking_models.Booking
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !CanView(b, actor) {
		return nil, ErrForbidden
	}
	return b, nil
}

// GetByRef looks a booking up by its host-visible request reference.
func (s *Service) GetByRef(ctx context.Context, actor shared_models.Actor, ref string) (*booking_models.Booking, error) {
	var b *booking_models.Booking
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		b, err = tx.GetBookingByRef(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !CanView(b, actor) {
		return nil, ErrForbidden
	}
	return b, nil
}

func (s *Service) Select(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
	return s.transition(ctx, id, ActionSelect, func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error {
		return Select(b, actor, now)
	})
}

func (s *Service) Approve(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
	return s.transition(ctx, id, ActionApprove, func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error {
		return Approve(b, actor, now)
	})
}

func (s *Service) Reject(ctx context.Context, actor shared_models.Actor, id uuid.UUID, reason string) (*booking_models.Booking, error) {
	return s.transition(ctx, id, ActionReject, func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error {
		return Reject(b, actor, reason, now)
	})
}

func (s *Service) Cancel(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
	return s.transition(ctx, id, ActionCancel, func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error {
		txs, err := tx.ListTransactionsByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		performed := false
		for _, t := range txs {
			if t.State == payment_transaction_models.StatePerformed || t.State == payment_transaction_models.StateCancelledAfterPerform {
				performed = true
				break
			}
		}
		return Cancel(b, actor, performed, now)
	})
}

func (s *Service) Confirm(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
	return s.transition(ctx, id, ActionConfirm, func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error {
		return Confirm(b, actor, now)
	})
}

// SettleRefund records that the refund owed after a cancelled-after-perform
// transaction has been paid out.
func (s *Service) SettleRefund(ctx context.Context, actor shared_models.Actor, id uuid.UUID) (*booking_models.Booking, error) {
	return s.transition(ctx, id, ActionRefundSettled, func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error {
		return SettleRefund(b, actor, now)
	})
}

type transitionFunc func(ctx context.Context, tx repository.Tx, b *booking_models.Booking, now time.Time) error

// holdsSlots lists the actions whose result keeps the booking occupying its slots.
var holdsSlots = map[Action]bool{
	ActionSelect:  true,
	ActionApprove: true,
	ActionConfirm: true,
}

// transition applies fn under the booking's row lock. Actions that keep the slots
// also take the room lock and re-check that no other booking was admitted over them
// after this hold lapsed.
func (s *Service) transition(ctx context.Context, id uuid.UUID, action Action, fn transitionFunc) (*booking_models.Booking, error) {
	var updated *booking_models.Booking
	var ev events.Event

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if holdsSlots[action] {
			if err := tx.LockRoom(ctx, b.RoomID); err != nil {
				return err
			}
		}
		now := s.now()

		next := b.Clone()
		if err := fn(ctx, tx, next, now); err != nil {
			return err
		}
		if holdsSlots[action] {
			if err := s.checkHeld(ctx, tx, b, action, now); err != nil {
				return err
			}
		}
		if err := tx.UpdateBooking(ctx, next); err != nil {
			return err
		}
		updated = next
		ev = events.ForBooking(events.TypeBookingTransitioned, string(action), next, b.Status, now)
		return nil
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			logger.InfoLogger.Infof("Booking %s: %v", id, err)
		}
		return nil, err
	}

	logger.InfoLogger.Infof("Booking %s %s: %s -> %s", id, action, ev.From, ev.To)
	events.PublishAfterCommit(ctx, s.publisher, []events.Event{ev})
	return updated, nil
}

func (s *Service) checkHeld(ctx context.Context, tx repository.Tx, b *booking_models.Booking, action Action, now time.Time) error {
	room, err := tx.GetRoom(ctx, b.RoomID)
	if err != nil {
		return err
	}
	existing, err := tx.ListOccupyingBookings(ctx, b.RoomID, now)
	if err != nil {
		return err
	}
	d := availability.HeldConflict(room.Schedule, existing, b.ID, b.Slots, now)
	if d.Admit {
		return nil
	}
	logger.WarnLogger.Warnf("Booking %s lost slot %d to booking %s (%s)", b.ID, d.SlotIndex, d.ConflictsWith, d.Reason)
	return guard(action, b, "another booking now holds the slot")
}

// SweepExpired cancels pending bookings whose hold has lapsed, in batches.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	logger.InfoLogger.Info("Attempting to sweep expired pending bookings")

	total := 0
	for round := 0; round < maxSweepRounds; round++ {
		now := s.now()
		var evs []events.Event
		err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			expired, err := tx.ListExpiredPending(ctx, now, s.sweepBatch)
			if err != nil {
				return err
			}
			for i := range expired {
				b := &expired[i]
				if err := Expire(b, now); err != nil {
					continue
				}
				if err := tx.UpdateBooking(ctx, b); err != nil {
					return err
				}
				evs = append(evs, events.ForBooking(events.TypeBookingTransitioned, string(ActionExpire), b, booking_models.StatusPending, now))
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("failed to sweep expired bookings: %w", err)
		}

		total += len(evs)
		events.PublishAfterCommit(ctx, s.publisher, evs)
		if len(evs) < s.sweepBatch {
			break
		}
	}

	logger.InfoLogger.Infof("Swept %d expired pending booking(s) successfully", total)
	return total, nil
}

// FreeBusy returns the availability of a room on one date.
func (s *Service) FreeBusy(ctx context.Context, roomID uuid.UUID, date string) (availability.DayAvailability, error) {
	now := s.now()
	var day availability.DayAvailability
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		existing, err := tx.ListOccupyingBookings(ctx, roomID, now)
		if err != nil {
			return err
		}
		day, err = availability.FreeBusy(room.Schedule, existing, date, now)
		if err != nil {
			return invalidRequest("%v", err)
		}
		return nil
	})
	return day, err
}

// ContentionReport exposes the monitor's recent admission conflicts.
func (s *Service) ContentionReport(ctx context.Context, window time.Duration) (monitor.Report, error) {
	return s.monitor.Report(ctx, window)
}
