package availability

import (
	"sort"
	"time"

	"github.com/joy095/roomslot/models/booking_models"
	"github.com/joy095/roomslot/models/schedule_models"
)

type SpanKind string

const (
	SpanBooked   SpanKind = "booked"
	SpanCooldown SpanKind = "cooldown"
)

// Span is a wall-clock range within one date.
type Span struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Kind  SpanKind `json:"kind,omitempty"`
}

// DayAvailability is the free/busy map of a room for one date.
type DayAvailability struct {
	Date   string `json:"date"`
	Open   bool   `json:"open"`
	Reason Reason `json:"reason,omitempty"`
	Window *Span  `json:"window,omitempty"`
	Busy   []Span `json:"busy"`
	Free   []Span `json:"free"`
}

type piece struct {
	iv   interval
	kind SpanKind
}

// FreeBusy lays the occupying bookings and their cooldowns over one date's window.
func FreeBusy(cfg schedule_models.RoomScheduleConfig, existing []booking_models.Booking, date string, now time.Time) (DayAvailability, error) {
	day, err := dayIndex(date)
	if err != nil {
		return DayAvailability{}, err
	}

	out := DayAvailability{Date: date, Busy: []Span{}, Free: []Span{}}
	wd := weekdayOf(day)
	switch {
	case cfg.IsBlockedDate(date):
		out.Reason = ReasonBlockedDate
		return out, nil
	case cfg.IsBlockedWeekday(wd):
		out.Reason = ReasonBlockedWeekday
		return out, nil
	}
	w, open := cfg.WindowFor(wd)
	if !open {
		out.Reason = ReasonOutsideHours
		return out, nil
	}
	ws, we, err := w.Minutes()
	if err != nil || ws >= we {
		out.Reason = ReasonOutsideHours
		return out, nil
	}
	out.Open = true
	out.Window = &Span{Start: schedule_models.FormatClock(ws), End: schedule_models.FormatClock(we)}

	base := day * minutesPerDay
	dayIv := interval{base, base + minutesPerDay}

	var pieces []piece
	add := func(iv interval, kind SpanKind) {
		c := interval{max(iv.start, dayIv.start), min(iv.end, dayIv.end)}
		if !c.empty() {
			pieces = append(pieces, piece{c, kind})
		}
	}
	for _, o := range buildOccupancy(cfg, existing, now) {
		add(o.raw, SpanBooked)
		for _, m := range o.margins {
			add(m, SpanCooldown)
		}
	}
	sort.Slice(pieces, func(i, j int) bool { return pieces[i].iv.start < pieces[j].iv.start })

	span := func(iv interval, kind SpanKind) Span {
		return Span{
			Start: schedule_models.FormatClock(int(iv.start - base)),
			End:   schedule_models.FormatClock(int(iv.end - base)),
			Kind:  kind,
		}
	}

	cursor, limit := base+int64(ws), base+int64(we)
	for _, p := range pieces {
		out.Busy = append(out.Busy, span(p.iv, p.kind))
		if p.iv.start > cursor && cursor < limit {
			out.Free = append(out.Free, span(interval{cursor, min(p.iv.start, limit)}, ""))
		}
		cursor = max(cursor, p.iv.end)
	}
	if cursor < limit {
		out.Free = append(out.Free, span(interval{cursor, limit}, ""))
	}
	return out, nil
}
