// Package availability decides whether requested slots may become a booking.
// Everything here is pure: callers pass in the schedule and the current bookings.
package availability

import (
	"time"

	"github.com/google/uuid"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/schedule_models"
)

// Reason is a machine-readable admission failure code.
type Reason string

const (
	ReasonBlockedDate      Reason = "blocked_date"
	ReasonBlockedWeekday   Reason = "blocked_weekday"
	ReasonOutsideHours     Reason = "outside_hours"
	ReasonCooldownConflict Reason = "cooldown_conflict"
	ReasonOverlap          Reason = "overlap"
	ReasonInvalidSlot      Reason = "invalid_slot"
)

var reasonMessages = map[Reason]string{
	ReasonBlockedDate:      "The room is not available on this date.",
	ReasonBlockedWeekday:   "The room does not take bookings on this day of the week.",
	ReasonOutsideHours:     "The requested time is outside the room's operating hours.",
	ReasonCooldownConflict: "The room needs a break between bookings; please choose a later or earlier time.",
	ReasonOverlap:          "The requested time is already booked.",
	ReasonInvalidSlot:      "The requested time slot is not valid.",
}

// Message is the client-facing explanation for the reason.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return "The requested time is not available."
}

// Decision is the outcome of an admission check. SlotIndex is the first failing
// slot in request order, or -1.
type Decision struct {
	Admit         bool      `json:"admit"`
	Reason        Reason    `json:"reason,omitempty"`
	SlotIndex     int       `json:"slot_index"`
	ConflictsWith uuid.UUID `json:"-"`
}

func admitted() Decision { return Decision{Admit: true, SlotIndex: -1} }

func rejected(r Reason, slot int) Decision {
	return Decision{Reason: r, SlotIndex: slot}
}

// occupancy is one held slot of an existing booking plus its cooldown margins.
type occupancy struct {
	bookingID uuid.UUID
	raw       interval
	margins   []interval
}

// IsAdmissible evaluates the requested slots as a unit against the room schedule
// and the bookings that currently hold slots. Pending bookings whose hold expired
// before now are ignored even if they have not been swept yet.
func IsAdmissible(cfg schedule_models.RoomScheduleConfig, existing []booking_models.Booking, requested []booking_models.TimeSlot, now time.Time) Decision {
	if len(requested) == 0 {
		return rejected(ReasonInvalidSlot, -1)
	}

	ivs := make([]interval, len(requested))
	for i, slot := range requested {
		segs, err := splitSlot(slot)
		if err != nil {
			logger.DebugLogger.Debugf("Rejecting malformed slot %+v: %v", slot, err)
			return rejected(ReasonInvalidSlot, i)
		}
		for _, seg := range segs {
			if r := checkCalendar(cfg, seg); r != "" {
				return rejected(r, i)
			}
		}
		ivs[i] = interval{segs[0].abs().start, segs[len(segs)-1].abs().end}
	}

	occ := buildOccupancy(cfg, existing, now)
	for i, iv := range ivs {
		for j := 0; j < i; j++ {
			if iv.intersects(ivs[j]) {
				return rejected(ReasonOverlap, i)
			}
		}
		if d, found := findConflict(iv, occ); found {
			d.SlotIndex = i
			return d
		}
	}
	return admitted()
}

// HeldConflict re-checks slots that booking self already holds against the other
// bookings occupying the room at now. Calendar rules are not re-applied: they were
// settled at admission.
func HeldConflict(cfg schedule_models.RoomScheduleConfig, existing []booking_models.Booking, self uuid.UUID, slots []booking_models.TimeSlot, now time.Time) Decision {
	others := make([]booking_models.Booking, 0, len(existing))
	for _, b := range existing {
		if b.ID != self {
			others = append(others, b)
		}
	}
	occ := buildOccupancy(cfg, others, now)
	for i, slot := range slots {
		iv, err := slotInterval(slot)
		if err != nil {
			return rejected(ReasonInvalidSlot, i)
		}
		if d, found := findConflict(iv, occ); found {
			d.SlotIndex = i
			return d
		}
	}
	return admitted()
}

func checkCalendar(cfg schedule_models.RoomScheduleConfig, seg segment) Reason {
	wd := weekdayOf(seg.day)
	if cfg.IsBlockedDate(dateOf(seg.day)) {
		return ReasonBlockedDate
	}
	if cfg.IsBlockedWeekday(wd) {
		return ReasonBlockedWeekday
	}
	w, open := cfg.WindowFor(wd)
	if !open {
		return ReasonOutsideHours
	}
	start, end, err := w.Minutes()
	if err != nil || start >= end {
		logger.WarnLogger.Warnf("Room %s has an invalid %s window %+v; treating as closed", cfg.RoomID, wd, w)
		return ReasonOutsideHours
	}
	if seg.start < start || seg.end > end {
		return ReasonOutsideHours
	}
	return ""
}

func buildOccupancy(cfg schedule_models.RoomScheduleConfig, existing []booking_models.Booking, now time.Time) []occupancy {
	var out []occupancy
	for i := range existing {
		b := &existing[i]
		if !b.Occupies(now) {
			continue
		}
		if cfg.RoomID != uuid.Nil && b.RoomID != cfg.RoomID {
			continue
		}
		for _, slot := range b.Slots {
			iv, err := slotInterval(slot)
			if err != nil {
				logger.WarnLogger.Warnf("Booking %s holds a malformed slot %+v: %v", b.ID, slot, err)
				continue
			}
			out = append(out, occupancy{bookingID: b.ID, raw: iv, margins: cooldownMargins(cfg, iv)})
		}
	}
	return out
}

// cooldownMargins returns the buffers before and after a held interval. Parts that
// would fall on a blocked day are dropped: blocked days are hard boundaries.
func cooldownMargins(cfg schedule_models.RoomScheduleConfig, iv interval) []interval {
	c := int64(cfg.Cooldown())
	if c == 0 {
		return nil
	}
	margins := clipBlocked(cfg, interval{iv.start - c, iv.start})
	return append(margins, clipBlocked(cfg, interval{iv.end, iv.end + c})...)
}

func clipBlocked(cfg schedule_models.RoomScheduleConfig, iv interval) []interval {
	var out []interval
	for cur := iv.start; cur < iv.end; {
		day := floorDay(cur)
		end := min(iv.end, (day+1)*minutesPerDay)
		if !cfg.IsBlockedDay(dateOf(day), weekdayOf(day)) {
			out = append(out, interval{cur, end})
		}
		cur = end
	}
	return out
}

// findConflict prefers reporting a direct overlap over a cooldown conflict.
func findConflict(iv interval, occ []occupancy) (Decision, bool) {
	for _, o := range occ {
		if iv.intersects(o.raw) {
			return Decision{Reason: ReasonOverlap, ConflictsWith: o.bookingID}, true
		}
	}
	for _, o := range occ {
		for _, m := range o.margins {
			if iv.intersects(m) {
				return Decision{Reason: ReasonCooldownConflict, ConflictsWith: o.bookingID}, true
			}
		}
	}
	return Decision{}, false
}
