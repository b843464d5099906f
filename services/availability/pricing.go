package availability

import (
	"errors"
	"fmt"

	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/schedule_models"
)

// maxRecurringDays bounds ExpandDaily.
const maxRecurringDays = 366

// Quote is the price of a set of slots in minor units.
type Quote struct {
	BaseTotal     int64 `json:"base_total"`
	ProtectionFee int64 `json:"protection_fee"`
	FinalTotal    int64 `json:"final_total"`
	FullDaySlots  int   `json:"full_day_slots"`
}

// IsFullDay reports whether the slot is long enough for the full-day rate.
// It has no bearing on admission.
func IsFullDay(cfg schedule_models.RoomScheduleConfig, slot booking_models.TimeSlot) bool {
	if cfg.FullDayHours <= 0 {
		return false
	}
	minutes, err := SlotMinutes(slot)
	return err == nil && minutes >= cfg.FullDayHours*60
}

// QuoteSlots prices slots at the hourly rate, or at the full-day rate when the slot
// qualifies and the room has one. The protection plan is a flat fee per booking.
func QuoteSlots(room schedule_models.Room, slots []booking_models.TimeSlot, protection bool) (Quote, error) {
	var q Quote
	for _, slot := range slots {
		minutes, err := SlotMinutes(slot)
		if err != nil {
			return Quote{}, err
		}
		if room.Rates.FullDayRate > 0 && IsFullDay(room.Schedule, slot) {
			q.BaseTotal += room.Rates.FullDayRate
			q.FullDaySlots++
			continue
		}
		q.BaseTotal += (room.Rates.HourlyRate*int64(minutes) + 30) / 60
	}
	if protection {
		q.ProtectionFee = room.Rates.ProtectionPlanFee
	}
	q.FinalTotal = q.BaseTotal + q.ProtectionFee
	return q, nil
}

// ExpandDaily repeats a slot every day from its date through until, inclusive.
func ExpandDaily(slot booking_models.TimeSlot, until string) ([]booking_models.TimeSlot, error) {
	first, err := dayIndex(slot.Date)
	if err != nil {
		return nil, err
	}
	last, err := dayIndex(until)
	if err != nil {
		return nil, err
	}
	if last < first {
		return nil, errors.New("repeat end date is before the first slot")
	}
	if last-first+1 > maxRecurringDays {
		return nil, fmt.Errorf("recurring bookings are limited to %d days", maxRecurringDays)
	}

	out := make([]booking_models.TimeSlot, 0, last-first+1)
	for d := first; d <= last; d++ {
		out = append(out, booking_models.TimeSlot{Date: dateOf(d), Start: slot.Start, End: slot.End})
	}
	return out, nil
}
