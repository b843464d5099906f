package availability

import (
	"fmt"
	"time"

	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/schedule_models"
)

const minutesPerDay = schedule_models.MinutesPerDay

// interval is a half-open [start, end) range in absolute minutes, counted from
// 1970-01-01 00:00 wall-clock time.
type interval struct {
	start, end int64
}

func (a interval) intersects(b interval) bool {
	return a.start < b.end && b.start < a.end
}

func (a interval) empty() bool { return a.start >= a.end }

// segment is the part of a slot that falls on a single civil date.
type segment struct {
	day        int64
	start, end int
}

func (s segment) abs() interval {
	base := s.day * minutesPerDay
	return interval{base + int64(s.start), base + int64(s.end)}
}

func dayIndex(date string) (int64, error) {
	t, err := time.Parse(schedule_models.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t.Unix() / (24 * 60 * 60), nil
}

func dayTime(day int64) time.Time {
	return time.Unix(day*24*60*60, 0).UTC()
}

func dateOf(day int64) string { return dayTime(day).Format(schedule_models.DateLayout) }

func weekdayOf(day int64) time.Weekday { return dayTime(day).Weekday() }

// floorDay handles negative minute offsets so cooldowns before 1970 still map to a day.
func floorDay(minute int64) int64 {
	d := minute / minutesPerDay
	if minute%minutesPerDay < 0 {
		d--
	}
	return d
}

// splitSlot breaks a slot into per-date segments. An end at or before the start
// continues on the next date; "00:00" as the end means exactly midnight.
func splitSlot(slot booking_models.TimeSlot) ([]segment, error) {
	day, err := dayIndex(slot.Date)
	if err != nil {
		return nil, err
	}
	start, err := schedule_models.ParseClock(slot.Start)
	if err != nil {
		return nil, err
	}
	end, err := schedule_models.ParseClock(slot.End)
	if err != nil {
		return nil, err
	}
	if start >= minutesPerDay {
		return nil, fmt.Errorf("slot cannot start at %s", slot.Start)
	}
	if start == end {
		return nil, fmt.Errorf("slot %s-%s is empty", slot.Start, slot.End)
	}

	if end > start {
		return []segment{{day: day, start: start, end: end}}, nil
	}
	segs := []segment{{day: day, start: start, end: minutesPerDay}}
	if end > 0 {
		segs = append(segs, segment{day: day + 1, start: 0, end: end})
	}
	return segs, nil
}

// slotInterval is the whole slot as one absolute interval, midnight crossings included.
func slotInterval(slot booking_models.TimeSlot) (interval, error) {
	segs, err := splitSlot(slot)
	if err != nil {
		return interval{}, err
	}
	return interval{segs[0].abs().start, segs[len(segs)-1].abs().end}, nil
}

// SlotMinutes returns the slot duration in minutes.
func SlotMinutes(slot booking_models.TimeSlot) (int, error) {
	iv, err := slotInterval(slot)
	if err != nil {
		return 0, err
	}
	return int(iv.end - iv.start), nil
}
